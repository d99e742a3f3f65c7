package reconcile

import (
	"context"
	"maps"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
	"github.com/picklr-io/shipyard/internal/triggers"
)

// OutputCodeSHA256 is the code hash output of a function stage.
const OutputCodeSHA256 = "codeSha256"

// Function converges a serverless function: configuration, code, reserved
// concurrency, tags and background trigger rules.
type Function struct {
	Managed
	Config    ir.FunctionConfig
	RoleStage string
	// Stage is the name of this stage, used in error messages.
	Stage string
}

func (f *Function) Kind() string { return KindFunction }

// Name is the provider name of the function.
func (f *Function) Name() string {
	return engine.FunctionName(f.Config.DomainName)
}

func (f *Function) spec(roleARN string, tags map[string]string) cloud.FunctionSpec {
	return cloud.FunctionSpec{
		Name:        f.Name(),
		Runtime:     f.Config.Runtime,
		Handler:     f.Config.Handler,
		Role:        roleARN,
		MemorySize:  f.Config.MemorySize,
		Timeout:     f.Config.TimeoutSeconds,
		Environment: f.Config.Environment,
		Tags:        tags,
	}
}

func (f *Function) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	name := f.Name()
	log := logger(run, KindFunction, name)

	role, err := dependency(run, f.Stage, f.RoleStage)
	if err != nil {
		return nil, err
	}
	archive, err := PackageDirectory(f.Config.CodeDirectory)
	if err != nil {
		return nil, engine.ConfigError(name, "%v", err)
	}

	c, err := run.Clients(ctx, f.Config.Region)
	if err != nil {
		return nil, err
	}
	own := f.owner(run)
	spec := f.spec(role.RemoteID, own.Tags())

	current, err := c.Functions.GetFunction(ctx, name)
	if err != nil {
		return nil, providerErr("get function", name, err)
	}

	var res *engine.Result
	if current == nil {
		res, err = f.create(ctx, run, c, spec, archive)
	} else {
		res, err = f.update(ctx, run, c, current, spec, archive)
	}
	if err != nil {
		return nil, err
	}

	registrar := &triggers.Registrar{Rules: c.Rules, Functions: c.Functions}
	o, err := registrar.Reconcile(ctx, run, triggers.Function{Name: name, ARN: res.RemoteID}, f.Config.Declarations())
	if err != nil {
		return nil, err
	}
	res.Merge(o)

	log.Info("function reconciled", "outcome", res.Outcome)
	return res, nil
}

func (f *Function) create(ctx context.Context, run *engine.Run, c *cloud.Clients, spec cloud.FunctionSpec, archive *Archive) (*engine.Result, error) {
	var created *cloud.FunctionState
	// A role created moments ago is not yet assumable by the function service.
	err := run.RetryEventuallyConsistent(ctx, "create function", func() error {
		var err error
		created, err = c.Functions.CreateFunction(ctx, spec, archive.Data)
		return err
	})
	if err != nil {
		return nil, providerErr("create function", spec.Name, err)
	}
	if err := f.waitActive(ctx, run, c.Functions, spec.Name); err != nil {
		return nil, err
	}
	if n := f.Config.ReservedConcurrency; n != nil {
		if err := c.Functions.PutReservedConcurrency(ctx, spec.Name, *n); err != nil {
			return nil, providerErr("set reserved concurrency", spec.Name, err)
		}
	}
	return f.result(engine.Created, created.ARN, archive.SHA256), nil
}

func (f *Function) update(ctx context.Context, run *engine.Run, c *cloud.Clients, current *cloud.FunctionState, spec cloud.FunctionSpec, archive *Archive) (*engine.Result, error) {
	name := spec.Name
	if err := f.owner(run).Check("function", current.ARN, current.Tags); err != nil {
		return nil, err
	}
	log := logger(run, KindFunction, name)
	changed := false

	if current.LastUpdateStatus == cloud.UpdateStatusInProgress {
		if err := f.waitUpdated(ctx, run, c.Functions, name); err != nil {
			return nil, err
		}
	}

	if configDiffers(current, spec) {
		err := run.RetryEventuallyConsistent(ctx, "update function configuration", func() error {
			return c.Functions.UpdateFunctionConfiguration(ctx, spec)
		})
		if err != nil {
			return nil, providerErr("update function configuration", name, err)
		}
		if err := f.waitUpdated(ctx, run, c.Functions, name); err != nil {
			return nil, err
		}
		log.Info("function configuration updated")
		changed = true
	}

	if current.CodeSHA256 != archive.SHA256 {
		if err := c.Functions.UpdateFunctionCode(ctx, name, archive.Data); err != nil {
			return nil, providerErr("update function code", name, err)
		}
		if err := f.waitUpdated(ctx, run, c.Functions, name); err != nil {
			return nil, err
		}
		log.Info("function code updated", "code_sha256", archive.SHA256)
		changed = true
	}

	want := f.Config.ReservedConcurrency
	switch {
	case want == nil && current.ReservedConcurrency != nil:
		if err := c.Functions.DeleteReservedConcurrency(ctx, name); err != nil {
			return nil, providerErr("clear reserved concurrency", name, err)
		}
		changed = true
	case want != nil && (current.ReservedConcurrency == nil || *current.ReservedConcurrency != *want):
		if err := c.Functions.PutReservedConcurrency(ctx, name, *want); err != nil {
			return nil, providerErr("set reserved concurrency", name, err)
		}
		changed = true
	}

	if current.Tags[engine.OwnershipTagKey] != engine.OwnershipTagValue {
		if err := c.Functions.TagFunction(ctx, current.ARN, spec.Tags); err != nil {
			return nil, providerErr("tag function", name, err)
		}
		changed = true
	}

	return f.result(outcome(changed), current.ARN, archive.SHA256), nil
}

func (f *Function) result(o engine.Outcome, arn, codeSHA string) *engine.Result {
	return &engine.Result{
		Outcome:  o,
		RemoteID: arn,
		Outputs: map[string]string{
			OutputARN:        arn,
			OutputName:       f.Name(),
			OutputCodeSHA256: codeSHA,
		},
	}
}

func (f *Function) waitActive(ctx context.Context, run *engine.Run, fns cloud.Functions, name string) error {
	return run.Wait(ctx, "function "+name+" to become active", engine.FunctionSettlePolicy, func(ctx context.Context) (engine.Status, error) {
		st, err := fns.GetFunction(ctx, name)
		if err != nil {
			return engine.Status{}, err
		}
		switch {
		case st == nil:
			return engine.Pending(), nil
		case st.State == cloud.FunctionStateActive:
			return engine.Succeeded(), nil
		case st.State == cloud.FunctionStateFailed:
			return engine.Failed(st.StateReason), nil
		}
		return engine.Pending(), nil
	})
}

func (f *Function) waitUpdated(ctx context.Context, run *engine.Run, fns cloud.Functions, name string) error {
	return run.Wait(ctx, "function "+name+" update", engine.FunctionSettlePolicy, func(ctx context.Context) (engine.Status, error) {
		st, err := fns.GetFunction(ctx, name)
		if err != nil {
			return engine.Status{}, err
		}
		switch {
		case st == nil:
			return engine.Failed("function disappeared"), nil
		case st.LastUpdateStatus == cloud.UpdateStatusSuccessful:
			return engine.Succeeded(), nil
		case st.LastUpdateStatus == cloud.UpdateStatusFailed:
			return engine.Failed(st.LastUpdateReason), nil
		}
		return engine.Pending(), nil
	})
}

// configDiffers compares the configurable fields. An absent environment
// and an empty one are the same.
func configDiffers(current *cloud.FunctionState, spec cloud.FunctionSpec) bool {
	if current.Runtime != spec.Runtime || current.Handler != spec.Handler || current.Role != spec.Role {
		return true
	}
	if current.MemorySize != spec.MemorySize || current.Timeout != spec.Timeout {
		return true
	}
	if len(current.Environment) == 0 && len(spec.Environment) == 0 {
		return false
	}
	return !maps.Equal(current.Environment, spec.Environment)
}
