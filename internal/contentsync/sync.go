package contentsync

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/logging"
)

// Limits of a synchronization.
const (
	MaxListedObjects = 10000
	DeleteBatchSize  = 1000
)

// ImmutableCacheControl is sent with files matching an immutable pattern.
const ImmutableCacheControl = "public, max-age=3153600000, immutable"

// Options describes one synchronization.
type Options struct {
	Dir               string
	Bucket            string
	IndexPage         string
	ImmutablePatterns []string
}

// Report summarizes a synchronization.
type Report struct {
	Diff    Diff
	Added   int
	Updated int
	Removed int
	// Paths are the CDN paths made stale by the synchronization.
	Paths []string
}

// Changed reports whether any object was written or removed.
func (r *Report) Changed() bool {
	return !r.Diff.Empty()
}

// Summary renders the counts for humans, e.g. "2 files added, 1 file removed".
func (r *Report) Summary() string {
	var parts []string
	for _, c := range []struct {
		n  int
		op string
	}{{r.Added, "added"}, {r.Updated, "updated"}, {r.Removed, "removed"}} {
		if c.n == 0 {
			continue
		}
		unit := "file"
		if c.n > 1 {
			unit = "files"
		}
		parts = append(parts, fmt.Sprintf("%d %s %s", c.n, unit, c.op))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

// Syncer mirrors a directory into a bucket.
type Syncer struct {
	Store cloud.ObjectStore
	// MaxListed bounds the bucket listing; zero means MaxListedObjects.
	MaxListed int
	Log       *slog.Logger
}

// Sync uploads new and changed files, deletes objects with no local
// counterpart and records the settings in the manifest.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Report, error) {
	log := s.Log
	if log == nil {
		log = logging.Logger()
	}
	limit := s.MaxListed
	if limit <= 0 {
		limit = MaxListedObjects
	}

	local, err := Inventory(opts.Dir)
	if err != nil {
		return nil, engine.ConfigError(opts.Bucket, "%v", err)
	}

	previous, err := LoadManifest(ctx, s.Store, opts.Bucket)
	if err != nil {
		return nil, engine.ProviderError("load content manifest", err).WithResource(opts.Bucket)
	}

	listing, err := s.Store.ListObjects(ctx, opts.Bucket, limit)
	if err != nil {
		return nil, engine.ProviderError("list bucket objects", err).WithResource(opts.Bucket)
	}
	if listing.Truncated {
		return nil, engine.ListingOverflowError("ListObjects", limit).WithResource(opts.Bucket)
	}

	diff := ComputeDiff(local, listing.Objects, previous.Patterns(), opts.ImmutablePatterns)
	report := &Report{Diff: diff}

	remote := make(map[string]bool, len(listing.Objects))
	for _, o := range listing.Objects {
		remote[o.Key] = true
	}

	for _, key := range diff.ToUpload {
		if err := s.upload(ctx, opts, key); err != nil {
			return nil, err
		}
		if remote[key] {
			report.Updated++
		} else {
			report.Added++
		}
		log.Debug("uploaded", "bucket", opts.Bucket, "key", key)
	}

	for start := 0; start < len(diff.ToDelete); start += DeleteBatchSize {
		end := min(start+DeleteBatchSize, len(diff.ToDelete))
		if err := s.Store.DeleteObjects(ctx, opts.Bucket, diff.ToDelete[start:end]); err != nil {
			return nil, engine.ProviderError("delete bucket objects", err).WithResource(opts.Bucket)
		}
		report.Removed += end - start
	}

	current := &Manifest{ImmutableFilePatterns: opts.ImmutablePatterns, IndexPage: opts.IndexPage}
	if !current.Equal(previous) {
		if err := s.writeManifest(ctx, opts.Bucket, current); err != nil {
			return nil, err
		}
	}

	changed := append(append([]string{}, diff.ToUpload...), diff.ToDelete...)
	report.Paths = InvalidationPaths(changed, opts.IndexPage)
	log.Info("content synchronized", "bucket", opts.Bucket, "summary", report.Summary())
	return report, nil
}

func (s *Syncer) upload(ctx context.Context, opts Options, key string) error {
	body, err := os.ReadFile(filepath.Join(opts.Dir, filepath.FromSlash(key)))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	in := cloud.PutObjectInput{
		Bucket:      opts.Bucket,
		Key:         key,
		Body:        body,
		ContentType: ContentType(key),
		ContentMD5:  contentMD5(body),
		PublicRead:  true,
	}
	if IsImmutable(key, opts.ImmutablePatterns) {
		in.CacheControl = ImmutableCacheControl
	}
	if err := s.Store.PutObject(ctx, in); err != nil {
		return engine.ProviderError("upload "+key, err).WithResource(opts.Bucket)
	}
	return nil
}

func (s *Syncer) writeManifest(ctx context.Context, bucket string, m *Manifest) error {
	body, err := m.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ManifestKey, err)
	}
	err = s.Store.PutObject(ctx, cloud.PutObjectInput{
		Bucket:      bucket,
		Key:         ManifestKey,
		Body:        body,
		ContentType: "application/json",
		ContentMD5:  contentMD5(body),
	})
	if err != nil {
		return engine.ProviderError("write content manifest", err).WithResource(bucket)
	}
	return nil
}

func contentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}
