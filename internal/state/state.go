package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
)

// LedgerVersion is the ledger format written by this release.
const LedgerVersion = 1

// Manager keeps the ledger in a local JSON file.
type Manager struct {
	path string
	now  func() time.Time
}

func NewManager(path string) *Manager {
	return &Manager{path: path, now: time.Now}
}

// Path returns the ledger file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the ledger from the configured path.
func (m *Manager) Read(_ context.Context) (*ir.Ledger, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file %s: %w", m.path, err)
	}
	ledger, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger from %s: %w", m.path, err)
	}
	return ledger, nil
}

// Write saves the ledger to the configured path. The file is replaced
// atomically.
func (m *Manager) Write(_ context.Context, ledger *ir.Ledger) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	content, err := Encode(ledger, m.now())
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace ledger file %s: %w", m.path, err)
	}
	return nil
}

// NewLedger returns an empty ledger with a fresh lineage.
func NewLedger() *ir.Ledger {
	return &ir.Ledger{
		Version: LedgerVersion,
		Lineage: uuid.NewString(),
		Results: map[string]*engine.Result{},
	}
}

// Encode bumps the serial of ledger, stamps it and serializes it.
func Encode(ledger *ir.Ledger, now time.Time) ([]byte, error) {
	if ledger.Lineage == "" {
		ledger.Lineage = uuid.NewString()
	}
	ledger.Version = LedgerVersion
	ledger.Serial++
	ledger.UpdatedAt = now.UTC().Format(time.RFC3339)

	content, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return append(content, '\n'), nil
}

// Decode parses a serialized ledger.
func Decode(raw []byte) (*ir.Ledger, error) {
	var ledger ir.Ledger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	if ledger.Version > LedgerVersion {
		return nil, fmt.Errorf("ledger version %d is newer than supported version %d", ledger.Version, LedgerVersion)
	}
	if ledger.Results == nil {
		ledger.Results = map[string]*engine.Result{}
	}
	return &ledger, nil
}
