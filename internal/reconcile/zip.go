package reconcile

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// zipEpoch is stamped on every archive entry so that unchanged sources
// always produce the same archive and the same code hash.
var zipEpoch = time.Date(1984, 1, 24, 0, 0, 0, 0, time.UTC)

// Archive is a packaged function code directory.
type Archive struct {
	Data []byte
	// SHA256 is the base64 SHA-256 of Data, the form the provider reports.
	SHA256 string
}

// PackageDirectory zips dir deterministically.
func PackageDirectory(dir string) (*Archive, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read code directory: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("code directory %s is empty", dir)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range paths {
		if err := addFile(zw, dir, path); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &Archive{Data: buf.Bytes(), SHA256: base64.StdEncoding.EncodeToString(sum[:])}, nil
}

func addFile(zw *zip.Writer, dir, path string) error {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}
	hdr.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}
	return nil
}
