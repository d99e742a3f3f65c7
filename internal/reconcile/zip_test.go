package reconcile

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageDirectory_Deterministic(t *testing.T) {
	files := map[string]string{
		"handler.js":      "exports.handler = 1",
		"lib/a.js":        "a",
		"lib/nested/b.js": "b",
	}
	dirA, dirB := t.TempDir(), t.TempDir()
	writeFiles(t, dirA, files)
	writeFiles(t, dirB, files)

	// Different modification times must not change the archive.
	old := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dirB, "handler.js"), old, old))

	a, err := PackageDirectory(dirA)
	require.NoError(t, err)
	b, err := PackageDirectory(dirB)
	require.NoError(t, err)
	assert.Equal(t, a.SHA256, b.SHA256)
	assert.Equal(t, a.Data, b.Data)

	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.True(t, f.Modified.Equal(zipEpoch), "%s modified %s", f.Name, f.Modified)
	}
	assert.Equal(t, []string{"handler.js", "lib/a.js", "lib/nested/b.js"}, names)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "exports.handler = 1", string(body))
}

func TestPackageDirectory_ContentChangesHash(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"handler.js": "v1"})
	before, err := PackageDirectory(dir)
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{"handler.js": "v2"})
	after, err := PackageDirectory(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before.SHA256, after.SHA256)
}

func TestPackageDirectory_Errors(t *testing.T) {
	_, err := PackageDirectory(t.TempDir())
	assert.ErrorContains(t, err, "is empty")

	_, err = PackageDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
