package triggers

import (
	"context"
	"strings"
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/cloud/cloudtest"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrar(t *testing.T, fake *cloudtest.Cloud) (*Registrar, *engine.Run, Function) {
	t.Helper()
	fake.PutFunction(cloud.FunctionState{Name: "api-example-com", Tags: map[string]string{engine.OwnershipTagKey: engine.OwnershipTagValue}})
	fn, _ := fake.Function("api-example-com")

	clients, err := fake.Clients(context.Background(), "us-east-1")
	require.NoError(t, err)
	run := engine.NewRun(fake, engine.WithClock(enginetest.NewClock()))
	return &Registrar{Rules: clients.Rules, Functions: clients.Functions}, run, Function{Name: fn.Name, ARN: fn.ARN}
}

func TestRegistrar_CreatesRules(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)

	decls := []Declaration{
		{Path: "jobs/cleanup", Kind: KindSchedule, RateMs: 3600000},
		{Path: "jobs/report", Kind: KindSchedule, Cron: "0 12 * * MON-FRI"},
		{Path: "hooks/upload", Kind: KindEvent, EventPattern: `{"source":["aws.s3"]}`},
	}
	outcome, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, outcome)

	cleanup, ok := fake.Rule("api-example-com-jobs-cleanup")
	require.True(t, ok)
	assert.Equal(t, "rate(1 hour)", cleanup.ScheduleExpression)
	assert.Equal(t, "invokes jobs/cleanup every 1 hour", cleanup.Description)
	assert.Equal(t, engine.OwnershipTagValue, cleanup.Tags[engine.OwnershipTagKey])
	assert.Equal(t, fn.ARN, fake.RuleTargets(cleanup.Name)[TargetID])

	report, ok := fake.Rule("api-example-com-jobs-report")
	require.True(t, ok)
	assert.Equal(t, "cron(0 12 ? * MON-FRI *)", report.ScheduleExpression)

	upload, ok := fake.Rule("api-example-com-hooks-upload")
	require.True(t, ok)
	assert.Equal(t, `{"source":["aws.s3"]}`, upload.EventPattern)

	perms := fake.Permissions(fn.Name)
	require.Len(t, perms, 3)
	perm := perms["allow_events_api-example-com-jobs-cleanup"]
	assert.Equal(t, "events.amazonaws.com", perm.Principal)
	assert.Equal(t, cleanup.ARN, perm.SourceARN)
}

func TestRegistrar_Idempotent(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	decls := []Declaration{{Path: "jobs/cleanup", Kind: KindSchedule, RateMs: 60000}}

	_, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)
	fake.ResetCalls()

	outcome, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, outcome)
	assert.Empty(t, fake.Mutations())
}

func TestRegistrar_CorrectsDrift(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	decls := []Declaration{{Path: "jobs/cleanup", Kind: KindSchedule, RateMs: 60000}}

	_, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)

	decls[0].RateMs = 2 * 86400000
	outcome, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, outcome)

	rule, _ := fake.Rule("api-example-com-jobs-cleanup")
	assert.Equal(t, "rate(2 days)", rule.ScheduleExpression)
}

func TestRegistrar_RemovesStaleRules(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{
		{Path: "jobs/a", RateMs: 60000},
		{Path: "jobs/b", RateMs: 60000},
	})
	require.NoError(t, err)

	// A rule of a function whose name shares the prefix.
	fake.PutRuleState(cloud.RuleState{
		Name: "api-example-com-v2-jobs-x",
		Tags: map[string]string{engine.OwnershipTagKey: engine.OwnershipTagValue, FunctionTagKey: "api-example-com-v2"},
	})

	outcome, err := reg.Reconcile(context.Background(), run, fn, []Declaration{{Path: "jobs/a", RateMs: 60000}})
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, outcome)

	assert.Equal(t, []string{"api-example-com-jobs-a", "api-example-com-v2-jobs-x"}, fake.RuleNames())
	assert.NotContains(t, fake.Permissions(fn.Name), "allow_events_api-example-com-jobs-b")
}

func TestRegistrar_RefusesForeignRule(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	fake.PutRuleState(cloud.RuleState{Name: "api-example-com-jobs-cleanup", ScheduleExpression: "rate(5 minutes)"})

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{{Path: "jobs/cleanup", RateMs: 60000}})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassOwnership))
	assert.Empty(t, fake.Mutations())
}

func TestRegistrar_RefusesSiblingFunctionRule(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	// "api-example-com-jobs" with trigger "cleanup" derives the same name.
	fake.PutRuleState(cloud.RuleState{
		Name:               "api-example-com-jobs-cleanup",
		ScheduleExpression: "rate(5 minutes)",
		Tags:               map[string]string{engine.OwnershipTagKey: engine.OwnershipTagValue, FunctionTagKey: "api-example-com-jobs"},
	})

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{{Path: "jobs/cleanup", RateMs: 60000}})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassOwnership))
	assert.Contains(t, err.Error(), "api-example-com-jobs")
	assert.Empty(t, fake.Mutations())

	rule, _ := fake.Rule("api-example-com-jobs-cleanup")
	assert.Equal(t, "rate(5 minutes)", rule.ScheduleExpression)
}

func TestRegistrar_RepairsPartialRule(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"target not set", "PutTarget"},
		{"permission not granted", "AddPermission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := cloudtest.New()
			reg, run, fn := newRegistrar(t, fake)
			decls := []Declaration{{Path: "jobs/cleanup", RateMs: 60000}}

			fake.Fail(tt.method, cloud.Fatal(tt.method, "InternalFailure", "boom"), 1)
			_, err := reg.Reconcile(context.Background(), run, fn, decls)
			require.Error(t, err)
			_, ok := fake.Rule("api-example-com-jobs-cleanup")
			require.True(t, ok)

			outcome, err := reg.Reconcile(context.Background(), run, fn, decls)
			require.NoError(t, err)
			assert.Equal(t, engine.Updated, outcome)

			rule, _ := fake.Rule("api-example-com-jobs-cleanup")
			assert.Equal(t, fn.ARN, fake.RuleTargets(rule.Name)[TargetID])
			perm, ok := fake.Permissions(fn.Name)["allow_events_api-example-com-jobs-cleanup"]
			require.True(t, ok)
			assert.Equal(t, rule.ARN, perm.SourceARN)

			fake.ResetCalls()
			outcome, err = reg.Reconcile(context.Background(), run, fn, decls)
			require.NoError(t, err)
			assert.Equal(t, engine.Unchanged, outcome)
			assert.Empty(t, fake.Mutations())
		})
	}
}

func TestRegistrar_RetargetsRule(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	decls := []Declaration{{Path: "jobs/cleanup", RateMs: 60000}}
	_, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)

	clients, err := fake.Clients(context.Background(), "us-east-1")
	require.NoError(t, err)
	require.NoError(t, clients.Rules.PutTarget(context.Background(), "api-example-com-jobs-cleanup", TargetID, "arn:aws:lambda:us-east-1:123456789012:function:other"))

	outcome, err := reg.Reconcile(context.Background(), run, fn, decls)
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, outcome)
	assert.Equal(t, fn.ARN, fake.RuleTargets("api-example-com-jobs-cleanup")[TargetID])
	assert.Zero(t, fake.Called("PutRule"))
}

func TestRegistrar_CollidingRuleNamesBeforeAnyCall(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{
		{Path: "jobs/cleanup", RateMs: 60000},
		{Path: "jobs-cleanup", RateMs: 3600000},
	})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassConfig))
	assert.Contains(t, err.Error(), "api-example-com-jobs-cleanup")
	assert.Empty(t, fake.Calls())
	assert.Empty(t, fake.RuleNames())
}

func TestRegistrar_InvalidScheduleBeforeAnyCall(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{{Path: "jobs/x", RateMs: 90000}})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassConfig))
	assert.Empty(t, fake.Calls())
}

func TestRegistrar_TruncatedListing(t *testing.T) {
	fake := cloudtest.New()
	reg, run, fn := newRegistrar(t, fake)
	fake.Truncate("ListRules")

	_, err := reg.Reconcile(context.Background(), run, fn, []Declaration{{Path: "jobs/x", RateMs: 60000}})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassListingOverflow))
}

func TestRuleName(t *testing.T) {
	assert.Equal(t, "fn-jobs-clean-up", RuleName("fn", "jobs/clean up"))

	long := strings.Repeat("a", 60)
	name := RuleName(long, "jobs/cleanup")
	assert.Len(t, name, engine.RuleNameLimit)
	assert.True(t, strings.HasPrefix(name, rulePrefix(long)))
	assert.NotEqual(t, name, RuleName(long, "jobs/report"))
}
