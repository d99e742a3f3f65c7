package reconcile

import (
	"context"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// Inline policy attached to execution roles.
const (
	RolePolicyName = "basic-lambda-policy"

	assumeRolePolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":"lambda.amazonaws.com"},"Action":"sts:AssumeRole"}]}`
	loggingPolicy    = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["logs:*"],"Resource":"*"}]}`
)

// Role ensures the execution role functions run under. The role has no
// configurable fields, so an owned role is always unchanged.
type Role struct {
	Managed
	Name string
}

func (r *Role) Kind() string { return KindRole }

func (r *Role) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	c, err := run.Clients(ctx, GlobalRegion)
	if err != nil {
		return nil, err
	}
	log := logger(run, KindRole, r.Name)

	current, err := c.Roles.GetRole(ctx, r.Name)
	if err != nil {
		return nil, providerErr("get role", r.Name, err)
	}
	if current != nil {
		if err := r.owner(run).Check("role", current.ARN, current.Tags); err != nil {
			return nil, err
		}
		return r.result(engine.Unchanged, current.ARN), nil
	}

	created, err := c.Roles.CreateRole(ctx, cloud.RoleSpec{
		Name:             r.Name,
		AssumeRolePolicy: assumeRolePolicy,
		Tags:             r.owner(run).Tags(),
	})
	if err != nil {
		return nil, providerErr("create role", r.Name, err)
	}
	err = run.RetryEventuallyConsistent(ctx, "attach role policy", func() error {
		return c.Roles.PutRolePolicy(ctx, r.Name, RolePolicyName, loggingPolicy)
	})
	if err != nil {
		return nil, providerErr("attach role policy", r.Name, err)
	}
	log.Info("role created", "arn", created.ARN)
	return r.result(engine.Created, created.ARN), nil
}

func (r *Role) result(o engine.Outcome, arn string) *engine.Result {
	return &engine.Result{
		Outcome:  o,
		RemoteID: arn,
		Outputs:  map[string]string{OutputARN: arn, OutputName: r.Name},
	}
}
