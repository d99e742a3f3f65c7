package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Reconciler converges one remote resource toward its declared configuration.
type Reconciler interface {
	Kind() string
	Reconcile(ctx context.Context, run *Run) (*Result, error)
}

// ApplyEvent represents a progress event during a deployment.
type ApplyEvent struct {
	Stage    string
	Kind     string
	Status   string // "started", "completed", "failed", "skipped"
	Outcome  Outcome
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// PriorResults supplies results recorded by earlier runs.
type PriorResults interface {
	PriorResult(stage string) (*Result, bool)
}

// StageError reports which stage stopped a deployment.
type StageError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// SkipSet names the stages excluded from a run. An entry matches a stage by
// its full name ("api/certificate"), its resource part ("certificate") or
// its kind.
type SkipSet map[string]bool

// NewSkipSet builds a SkipSet from names, ignoring blanks.
func NewSkipSet(names ...string) SkipSet {
	s := make(SkipSet)
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = true
		}
	}
	return s
}

// Matches reports whether the stage is skipped.
func (s SkipSet) Matches(stage *Stage) bool {
	if len(s) == 0 {
		return false
	}
	if s[stage.Name] || s[stage.Kind()] {
		return true
	}
	if i := strings.LastIndex(stage.Name, "/"); i >= 0 && s[stage.Name[i+1:]] {
		return true
	}
	return false
}

// Orchestrator runs the stages of a deployment strictly one after another.
type Orchestrator struct {
	Prior    PriorResults
	Callback ApplyCallback
}

// Run executes stages in dependency order and stops at the first failure,
// returning the results gathered so far and a *StageError naming the stage
// that failed. Skipped stages are not reconciled: their result is taken
// from a previous run when available, and a stage that needs a skipped
// stage without such a result fails before it starts.
func (o *Orchestrator) Run(ctx context.Context, run *Run, stages []*Stage, skip SkipSet) ([]*Result, error) {
	dag, err := BuildDAG(stages)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage graph: %w", err)
	}

	byName := make(map[string]*Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	var results []*Result
	for _, name := range dag.Order() {
		stage := byName[name]
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("deployment cancelled: %w", err)
		}

		if skip.Matches(stage) {
			res := o.skipped(run, stage)
			if res != nil {
				results = append(results, res)
			}
			continue
		}

		if err := o.checkDependencies(run, stage); err != nil {
			o.emit(ApplyEvent{Stage: name, Kind: stage.Kind(), Status: "failed", Error: err})
			run.Metrics.ObserveStage(stage.Kind(), "", 0, err)
			return results, &StageError{Stage: name, Kind: stage.Kind(), Err: err}
		}

		start := run.Clock.Now()
		o.emit(ApplyEvent{Stage: name, Kind: stage.Kind(), Status: "started"})
		run.Log().Debug("reconciling", "stage", name, "kind", stage.Kind())

		res, err := stage.Reconciler.Reconcile(ctx, run)
		elapsed := run.Clock.Now().Sub(start)
		if err != nil {
			o.emit(ApplyEvent{Stage: name, Kind: stage.Kind(), Status: "failed", Duration: elapsed, Error: err})
			run.Metrics.ObserveStage(stage.Kind(), "", elapsed, err)
			run.Log().Error("stage failed", "stage", name, "class", ClassOf(err), "error", err)
			return results, &StageError{Stage: name, Kind: stage.Kind(), Err: err}
		}

		res.Stage = name
		if res.Kind == "" {
			res.Kind = stage.Kind()
		}
		run.SetResult(name, res)
		results = append(results, res)
		run.Metrics.ObserveStage(stage.Kind(), res.Outcome, elapsed, nil)
		o.emit(ApplyEvent{Stage: name, Kind: stage.Kind(), Status: "completed", Outcome: res.Outcome, Duration: elapsed})
		run.Log().Info("stage completed", "stage", name, "outcome", res.Outcome, "remote_id", res.RemoteID)
	}

	return results, nil
}

func (o *Orchestrator) skipped(run *Run, stage *Stage) *Result {
	o.emit(ApplyEvent{Stage: stage.Name, Kind: stage.Kind(), Status: "skipped", Outcome: Skipped})
	run.Metrics.ObserveStage(stage.Kind(), Skipped, 0, nil)

	if o.Prior == nil {
		run.Log().Info("stage skipped", "stage", stage.Name)
		return nil
	}
	prev, ok := o.Prior.PriorResult(stage.Name)
	if !ok {
		run.Log().Info("stage skipped", "stage", stage.Name, "prior_result", false)
		return nil
	}
	res := *prev
	res.Stage = stage.Name
	res.Outcome = Skipped
	run.SetResult(stage.Name, &res)
	run.Log().Info("stage skipped", "stage", stage.Name, "prior_result", true, "remote_id", res.RemoteID)
	return &res
}

func (o *Orchestrator) checkDependencies(run *Run, stage *Stage) error {
	for _, dep := range stage.DependsOn {
		if _, ok := run.Result(dep); !ok {
			return ConfigError(stage.Name,
				"%s needs the result of %s, which was skipped and has no result from a previous deployment", stage.Name, dep)
		}
	}
	return nil
}

func (o *Orchestrator) emit(ev ApplyEvent) {
	if o.Callback != nil {
		o.Callback(ev)
	}
}
