package contentsync

import (
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/stretchr/testify/assert"
)

func TestComputeDiff(t *testing.T) {
	patterns := []string{"**/*.immutable.*"}

	tests := []struct {
		name     string
		local    []File
		remote   []cloud.Object
		previous []string
		want     Diff
	}{
		{
			name:     "upload new, delete stale, keep identical",
			local:    []File{{Path: "a", Size: 1, MD5: "aa"}, {Path: "b", Size: 2, MD5: "bb"}},
			remote:   []cloud.Object{{Key: "a", Size: 1, ETag: "aa"}, {Key: "c", Size: 3, ETag: "cc"}},
			previous: patterns,
			want:     Diff{ToUpload: []string{"b"}, ToDelete: []string{"c"}, Unchanged: []string{"a"}},
		},
		{
			name:     "content change",
			local:    []File{{Path: "a", Size: 1, MD5: "a2"}},
			remote:   []cloud.Object{{Key: "a", Size: 1, ETag: "aa"}},
			previous: patterns,
			want:     Diff{ToUpload: []string{"a"}},
		},
		{
			name:     "size change",
			local:    []File{{Path: "a", Size: 2, MD5: "aa"}},
			remote:   []cloud.Object{{Key: "a", Size: 1, ETag: "aa"}},
			previous: patterns,
			want:     Diff{ToUpload: []string{"a"}},
		},
		{
			name:     "classification change",
			local:    []File{{Path: "app.immutable.js", Size: 1, MD5: "aa"}, {Path: "index.html", Size: 1, MD5: "bb"}},
			remote:   []cloud.Object{{Key: "app.immutable.js", Size: 1, ETag: "aa"}, {Key: "index.html", Size: 1, ETag: "bb"}},
			previous: nil,
			want:     Diff{ToUpload: []string{"app.immutable.js"}, Unchanged: []string{"index.html"}},
		},
		{
			name:     "dot keys ignored",
			local:    nil,
			remote:   []cloud.Object{{Key: ".shipyard.json", Size: 10, ETag: "xx"}},
			previous: patterns,
			want:     Diff{},
		},
		{
			name:     "etag case insensitive",
			local:    []File{{Path: "a", Size: 1, MD5: "abcdef"}},
			remote:   []cloud.Object{{Key: "a", Size: 1, ETag: "ABCDEF"}},
			previous: patterns,
			want:     Diff{Unchanged: []string{"a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiff(tt.local, tt.remote, tt.previous, patterns)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsImmutable(t *testing.T) {
	patterns := []string{"**/*.immutable.*", "assets/**"}
	assert.True(t, IsImmutable("app.immutable.js", patterns))
	assert.True(t, IsImmutable("js/vendor.immutable.js", patterns))
	assert.True(t, IsImmutable("assets/img/logo.png", patterns))
	assert.False(t, IsImmutable("index.html", patterns))
	assert.False(t, IsImmutable("index.html", nil))
}

func TestInvalidationPaths(t *testing.T) {
	got := InvalidationPaths([]string{"index.html", "docs/index.html", "app.js"}, "index.html")
	assert.Equal(t, []string{"/index.html", "/docs/index.html", "/docs/", "/app.js"}, got)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/javascript; charset=utf-8", ContentType("app.JS"))
	assert.Equal(t, "application/json", ContentType("data/manifest.json"))
	assert.Equal(t, "application/octet-stream", ContentType("LICENSE"))
	assert.Equal(t, "application/octet-stream", ContentType("blob.unknownext"))
}
