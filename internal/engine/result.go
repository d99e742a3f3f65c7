package engine

// Outcome is what a reconciliation did to a resource.
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
	// Skipped results come from a previous run's ledger.
	Skipped Outcome = "skipped"
)

// Result is returned by every reconciler. RemoteID is the provider
// identifier dependents need; Outputs carries any further values they read.
type Result struct {
	Stage    string            `json:"stage"`
	Kind     string            `json:"kind"`
	Outcome  Outcome           `json:"outcome"`
	RemoteID string            `json:"remoteId"`
	Outputs  map[string]string `json:"outputs,omitempty"`
}

// Output returns a named output value.
func (r *Result) Output(key string) string {
	if r == nil || r.Outputs == nil {
		return ""
	}
	return r.Outputs[key]
}

// Changed reports whether the reconciliation mutated anything.
func (r *Result) Changed() bool {
	return r != nil && (r.Outcome == Created || r.Outcome == Updated)
}

// Merge folds a sub-step outcome into r: any mutation upgrades an
// unchanged result to updated.
func (r *Result) Merge(o Outcome) {
	if r.Outcome == Unchanged && (o == Created || o == Updated) {
		r.Outcome = Updated
	}
}
