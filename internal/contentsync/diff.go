package contentsync

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/picklr-io/shipyard/internal/cloud"
)

// Diff is the set of operations that makes a bucket mirror a directory.
// Every path appears in exactly one of the three lists.
type Diff struct {
	ToUpload  []string
	ToDelete  []string
	Unchanged []string
}

// Empty reports whether nothing needs to change.
func (d Diff) Empty() bool {
	return len(d.ToUpload) == 0 && len(d.ToDelete) == 0
}

// IsImmutable reports whether path matches any of patterns.
func IsImmutable(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// ComputeDiff compares local files with a bucket listing. A file is
// unchanged only when its size and MD5 match the remote object and its
// immutability under current equals its immutability under previous, the
// patterns in force when it was last uploaded. Remote keys starting with a
// dot are never deleted.
func ComputeDiff(local []File, remote []cloud.Object, previous, current []string) Diff {
	remoteByKey := make(map[string]cloud.Object, len(remote))
	for _, o := range remote {
		if strings.HasPrefix(o.Key, ".") {
			continue
		}
		remoteByKey[o.Key] = o
	}

	var d Diff
	seen := make(map[string]bool, len(local))
	for _, f := range local {
		seen[f.Path] = true
		o, ok := remoteByKey[f.Path]
		if ok && o.Size == f.Size && strings.EqualFold(o.ETag, f.MD5) &&
			IsImmutable(f.Path, previous) == IsImmutable(f.Path, current) {
			d.Unchanged = append(d.Unchanged, f.Path)
			continue
		}
		d.ToUpload = append(d.ToUpload, f.Path)
	}
	for key := range remoteByKey {
		if !seen[key] {
			d.ToDelete = append(d.ToDelete, key)
		}
	}

	sort.Strings(d.ToUpload)
	sort.Strings(d.ToDelete)
	sort.Strings(d.Unchanged)
	return d
}

// InvalidationPaths returns the CDN paths to invalidate for changed keys. A
// key naming an index page below a directory also invalidates the
// directory itself ("docs/index.html" adds "/docs/").
func InvalidationPaths(changed []string, indexPage string) []string {
	paths := make([]string, 0, len(changed))
	for _, key := range changed {
		paths = append(paths, "/"+key)
		if indexPage != "" && strings.HasSuffix(key, "/"+indexPage) {
			paths = append(paths, "/"+strings.TrimSuffix(key, indexPage))
		}
	}
	return paths
}
