package contentsync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/picklr-io/shipyard/internal/cloud"
)

// ManifestKey is the side-car object recording the settings of the last
// synchronization.
const ManifestKey = ".shipyard.json"

// Manifest holds the settings that decide how files were uploaded.
type Manifest struct {
	ImmutableFilePatterns []string `json:"immutableFilePatterns"`
	IndexPage             string   `json:"indexPage"`
}

// Equal reports whether two manifests describe the same settings.
func (m *Manifest) Equal(o *Manifest) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.IndexPage == o.IndexPage && slices.Equal(m.ImmutableFilePatterns, o.ImmutableFilePatterns)
}

// Patterns returns the immutable patterns, tolerating a nil manifest.
func (m *Manifest) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.ImmutableFilePatterns
}

// LoadManifest reads the manifest of bucket. A missing manifest yields nil.
func LoadManifest(ctx context.Context, store cloud.ObjectStore, bucket string) (*Manifest, error) {
	body, err := store.GetObject(ctx, bucket, ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestKey, err)
	}
	if body == nil {
		return nil, nil
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ManifestKey, err)
	}
	return &m, nil
}

// Encode serializes the manifest.
func (m *Manifest) Encode() ([]byte, error) {
	return json.Marshal(m)
}
