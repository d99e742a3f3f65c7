package ir

import "github.com/picklr-io/shipyard/internal/engine"

// Ledger records the results of past deployments. It holds identifiers and
// outputs only; remote state is always re-read from the provider.
type Ledger struct {
	Version   int                       `json:"version"`
	Serial    int                       `json:"serial"`
	Lineage   string                    `json:"lineage"`
	UpdatedAt string                    `json:"updatedAt,omitempty"`
	Results   map[string]*engine.Result `json:"results"`
}

// PriorResult implements engine.PriorResults.
func (l *Ledger) PriorResult(stage string) (*engine.Result, bool) {
	if l == nil || l.Results == nil {
		return nil, false
	}
	r, ok := l.Results[stage]
	return r, ok
}

// Record stores the results of a run, keyed by stage. Skipped results are
// not recorded so the original outcome survives.
func (l *Ledger) Record(results []*engine.Result) {
	if l.Results == nil {
		l.Results = make(map[string]*engine.Result)
	}
	for _, r := range results {
		if r == nil || r.Outcome == engine.Skipped {
			continue
		}
		l.Results[r.Stage] = r
	}
}
