// Package state persists the deployment ledger between runs.
package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/picklr-io/shipyard/internal/ir"
)

// DefaultPath is the local ledger location relative to the project root.
const DefaultPath = ".shipyard/ledger.json"

// DefaultKey is the object key of a ledger kept in S3.
const DefaultKey = "shipyard/ledger.json"

// Backend defines the interface for ledger storage backends.
type Backend interface {
	// Read loads the ledger. A missing ledger reads as an empty one.
	Read(ctx context.Context) (*ir.Ledger, error)

	// Write saves the ledger, bumping its serial.
	Write(ctx context.Context, ledger *ir.Ledger) error

	// Lock acquires an exclusive lock on the ledger.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the ledger.
	Unlock(ctx context.Context) error
}

// ConfigLoader returns AWS configuration for a region.
type ConfigLoader func(ctx context.Context, region string) (aws.Config, error)

// NewBackend creates the backend selected by cfg. Relative local paths are
// resolved against root.
func NewBackend(ctx context.Context, root string, cfg ir.LedgerConfig, awsConfig ConfigLoader) (Backend, error) {
	switch cfg.Backend {
	case "local", "":
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		return NewManager(path), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 ledger backend requires a bucket")
		}
		region := cfg.Region
		if region == "" {
			region = ir.DefaultRegion
		}
		if awsConfig == nil {
			return nil, fmt.Errorf("s3 ledger backend requires AWS configuration")
		}
		awsCfg, err := awsConfig(ctx, region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		return NewS3Backend(awsCfg, S3Options{Bucket: cfg.Bucket, Key: cfg.Key, LockTable: cfg.LockTable}), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}
