package reconcile

import (
	"context"
	"strings"

	"github.com/picklr-io/shipyard/internal/contentsync"
	"github.com/picklr-io/shipyard/internal/engine"
)

// Content mirrors the website's source directory into its bucket.
type Content struct {
	Bucket            string
	Region            string
	Dir               string
	IndexPage         string
	ImmutablePatterns []string
	BucketStage       string
	Stage             string
}

func (c *Content) Kind() string { return KindContent }

func (c *Content) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	if _, err := dependency(run, c.Stage, c.BucketStage); err != nil {
		return nil, err
	}
	clients, err := run.Clients(ctx, c.Region)
	if err != nil {
		return nil, err
	}

	syncer := &contentsync.Syncer{Store: clients.Objects, Log: logger(run, KindContent, c.Bucket)}
	report, err := syncer.Sync(ctx, contentsync.Options{
		Dir:               c.Dir,
		Bucket:            c.Bucket,
		IndexPage:         c.IndexPage,
		ImmutablePatterns: c.ImmutablePatterns,
	})
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Outcome:  outcome(report.Changed()),
		RemoteID: c.Bucket,
		Outputs: map[string]string{
			OutputPaths: strings.Join(report.Paths, "\n"),
			"summary":   report.Summary(),
		},
	}, nil
}

// changedPaths returns the CDN paths a content result made stale.
func changedPaths(res *engine.Result) []string {
	if res == nil || res.Outcome == engine.Skipped {
		return nil
	}
	raw := res.Output(OutputPaths)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
