// Package reconcile holds the convergence routines for every resource kind
// a service deploys. Each reconciler discovers the remote resource, creates
// it when absent, refuses to touch it when it is not ours, and otherwise
// brings it in line with the declared configuration.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// Resource kinds, used as the last segment of stage names.
const (
	KindHostedZone   = "hosted-zone"
	KindRole         = "role"
	KindLogGroup     = "log-group"
	KindFunction     = "function"
	KindCertificate  = "certificate"
	KindGateway      = "gateway"
	KindDNSRecord    = "dns-record"
	KindBucket       = "bucket"
	KindContent      = "content"
	KindDistribution = "distribution"
)

// Output keys shared between stages.
const (
	OutputARN          = "arn"
	OutputName         = "name"
	OutputZoneID       = "zoneId"
	OutputTargetDomain = "targetDomain"
	OutputTargetZoneID = "targetZoneId"
	OutputEndpoint     = "endpoint"
	OutputPaths        = "paths"
)

// GlobalRegion hosts the global services (IAM, DNS, CDN) and the
// certificates a CDN distribution can use.
const GlobalRegion = "us-east-1"

// Managed carries the ownership values a reconciler accepts. A zero value
// defers to the run.
type Managed struct {
	Ownership engine.Ownership
}

func (m Managed) owner(run *engine.Run) engine.Ownership {
	if len(m.Ownership.Recognized) == 0 {
		return run.Ownership
	}
	return m.Ownership
}

// dependency returns the result of a stage this one needs.
func dependency(run *engine.Run, stage, needed string) (*engine.Result, error) {
	res, ok := run.Result(needed)
	if !ok {
		return nil, engine.ConfigError(stage, "missing result of %s", needed)
	}
	return res, nil
}

// providerErr wraps err as a provider error unless it is already classified.
func providerErr(operation, resource string, err error) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		if ee.Resource == "" {
			ee.Resource = resource
		}
		return err
	}
	return engine.ProviderError(operation, err).WithResource(resource)
}

func logger(run *engine.Run, kind, name string) *slog.Logger {
	return run.Log().With("resource", kind, "name", name)
}

// upsertRecord writes a record set and waits until the change is in sync.
func upsertRecord(ctx context.Context, run *engine.Run, dns cloud.DNS, zoneID string, record cloud.RecordState) error {
	changeID, err := dns.UpsertRecord(ctx, zoneID, record)
	if err != nil {
		return providerErr("upsert DNS record", record.Name, err)
	}
	return run.Wait(ctx, "DNS change "+changeID, engine.DNSChangePolicy, func(ctx context.Context) (engine.Status, error) {
		status, err := dns.GetChangeStatus(ctx, changeID)
		if err != nil {
			return engine.Status{}, err
		}
		if status == cloud.ChangeInSync {
			return engine.Succeeded(), nil
		}
		return engine.Pending(), nil
	})
}

func outcome(changed bool) engine.Outcome {
	if changed {
		return engine.Updated
	}
	return engine.Unchanged
}
