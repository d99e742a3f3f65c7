package reconcile

import (
	"context"
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/cloud/cloudtest"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoleARN = "arn:aws:iam::123456789012:role/shipyard-backend-lambda-role-v1"

func functionFixture(t *testing.T, mutate func(*ir.FunctionConfig)) *Function {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"handler.js":     "exports.handler = async () => ({statusCode: 200})",
		"lib/util.js":    "module.exports = {}",
		"package.json":   `{"name":"api"}`,
		"lib/data.json":  `{}`,
		"lib/readme.txt": "notes",
	})
	c := ir.FunctionConfig{DomainName: "api.example.com", CodeDirectory: dir}
	if mutate != nil {
		mutate(&c)
	}
	cfg, err := ir.NewFunctionConfig(c)
	require.NoError(t, err)
	return &Function{Config: *cfg, RoleStage: "api/role", Stage: "api/function"}
}

func runWithRole(fake *cloudtest.Cloud) *engine.Run {
	run := newRun(fake)
	run.SetResult("api/role", &engine.Result{RemoteID: testRoleARN})
	return run
}

func TestFunction_Create(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, func(c *ir.FunctionConfig) {
		c.Environment = map[string]string{"STAGE": "prod"}
		c.ReservedConcurrency = ptr[int32](5)
		c.Triggers = []ir.TriggerConfig{{Path: "jobs/cleanup", RateMs: 3600000}}
	})

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
	assert.Equal(t, "arn:aws:lambda:us-east-1:123456789012:function:api-example-com", res.RemoteID)
	assert.Equal(t, "api-example-com", res.Output(OutputName))

	fn, ok := fake.Function("api-example-com")
	require.True(t, ok)
	assert.Equal(t, cloud.FunctionStateActive, fn.State)
	assert.Equal(t, ir.DefaultRuntime, fn.Runtime)
	assert.Equal(t, ir.DefaultHandler, fn.Handler)
	assert.Equal(t, testRoleARN, fn.Role)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, fn.Environment)
	assert.Equal(t, res.Output(OutputCodeSHA256), fn.CodeSHA256)
	require.NotNil(t, fn.ReservedConcurrency)
	assert.Equal(t, int32(5), *fn.ReservedConcurrency)
	assert.Equal(t, engine.OwnershipTagValue, fn.Tags[engine.OwnershipTagKey])

	assert.Equal(t, []string{"api-example-com-jobs-cleanup"}, fake.RuleNames())
}

func TestFunction_Idempotent(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, func(c *ir.FunctionConfig) {
		c.ReservedConcurrency = ptr[int32](2)
		c.Triggers = []ir.TriggerConfig{{Path: "jobs/cleanup", RateMs: 3600000}}
	})

	_, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	fake.ResetCalls()

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, res.Outcome)
	assert.Empty(t, fake.Mutations())
}

func TestFunction_CorrectsDrift(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, nil)
	fake.PutFunction(cloud.FunctionState{
		Name:                "api-example-com",
		Runtime:             "nodejs18.x",
		Handler:             ir.DefaultHandler,
		Role:                testRoleARN,
		MemorySize:          512,
		Timeout:             ir.DefaultTimeoutSeconds,
		CodeSHA256:          "stale",
		ReservedConcurrency: ptr[int32](10),
		Tags:                ours(),
	})

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, res.Outcome)
	assert.Equal(t, []string{
		"UpdateFunctionConfiguration api-example-com",
		"UpdateFunctionCode api-example-com",
		"DeleteReservedConcurrency api-example-com",
	}, fake.Mutations())

	fn, _ := fake.Function("api-example-com")
	assert.Equal(t, ir.DefaultRuntime, fn.Runtime)
	assert.Equal(t, int32(ir.DefaultMemorySize), fn.MemorySize)
	assert.Equal(t, res.Output(OutputCodeSHA256), fn.CodeSHA256)
	assert.Nil(t, fn.ReservedConcurrency)
	assert.Equal(t, cloud.UpdateStatusSuccessful, fn.LastUpdateStatus)
}

func TestFunction_EmptyEnvironmentMatchesAbsent(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, nil)
	archive, err := PackageDirectory(f.Config.CodeDirectory)
	require.NoError(t, err)
	fake.PutFunction(cloud.FunctionState{
		Name:        "api-example-com",
		Runtime:     ir.DefaultRuntime,
		Handler:     ir.DefaultHandler,
		Role:        testRoleARN,
		MemorySize:  ir.DefaultMemorySize,
		Timeout:     ir.DefaultTimeoutSeconds,
		Environment: map[string]string{},
		CodeSHA256:  archive.SHA256,
		Tags:        ours(),
	})

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, res.Outcome)
	assert.Empty(t, fake.Mutations())
}

func TestFunction_WaitsForInProgressUpdate(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, nil)
	archive, err := PackageDirectory(f.Config.CodeDirectory)
	require.NoError(t, err)
	fake.PutFunction(cloud.FunctionState{
		Name:             "api-example-com",
		Runtime:          ir.DefaultRuntime,
		Handler:          ir.DefaultHandler,
		Role:             testRoleARN,
		MemorySize:       1024,
		Timeout:          ir.DefaultTimeoutSeconds,
		CodeSHA256:       archive.SHA256,
		LastUpdateStatus: cloud.UpdateStatusInProgress,
		Tags:             ours(),
	})

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, res.Outcome)
	assert.Equal(t, []string{"UpdateFunctionConfiguration api-example-com"}, fake.Mutations())
}

func TestFunction_RetagsRecognizedOlderValue(t *testing.T) {
	fake := cloudtest.New()
	f := functionFixture(t, nil)
	f.Managed = Managed{Ownership: engine.DefaultOwnership().Extend("shipyard-v0")}
	archive, err := PackageDirectory(f.Config.CodeDirectory)
	require.NoError(t, err)
	fake.PutFunction(cloud.FunctionState{
		Name:       "api-example-com",
		Runtime:    ir.DefaultRuntime,
		Handler:    ir.DefaultHandler,
		Role:       testRoleARN,
		MemorySize: ir.DefaultMemorySize,
		Timeout:    ir.DefaultTimeoutSeconds,
		CodeSHA256: archive.SHA256,
		Tags:       map[string]string{engine.OwnershipTagKey: "shipyard-v0"},
	})

	res, err := f.Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, res.Outcome)
	fn, _ := fake.Function("api-example-com")
	assert.Equal(t, engine.OwnershipTagValue, fn.Tags[engine.OwnershipTagKey])
}

func TestFunction_RefusesForeignFunction(t *testing.T) {
	for name, tags := range map[string]map[string]string{
		"untagged":      nil,
		"other manager": foreign(),
	} {
		t.Run(name, func(t *testing.T) {
			fake := cloudtest.New()
			fake.PutFunction(cloud.FunctionState{Name: "api-example-com", Runtime: "go1.x", Tags: tags})

			_, err := functionFixture(t, nil).Reconcile(context.Background(), runWithRole(fake))
			require.Error(t, err)
			assert.True(t, engine.IsClass(err, engine.ClassOwnership), "got %v", err)
			assert.Contains(t, err.Error(), "api-example-com")
			assert.Empty(t, fake.Mutations())
		})
	}
}

func TestFunction_RetriesWhileRolePropagates(t *testing.T) {
	fake := cloudtest.New()
	fake.Fail("CreateFunction", cloud.Retryable("CreateFunction", "InvalidParameterValueException", "The role defined for the function cannot be assumed by Lambda."), 2)

	res, err := functionFixture(t, nil).Reconcile(context.Background(), runWithRole(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
	assert.Equal(t, 3, fake.Called("CreateFunction"))
}

func TestFunction_Errors(t *testing.T) {
	t.Run("empty code directory", func(t *testing.T) {
		fake := cloudtest.New()
		f := functionFixture(t, nil)
		f.Config.CodeDirectory = t.TempDir()

		_, err := f.Reconcile(context.Background(), runWithRole(fake))
		require.Error(t, err)
		assert.True(t, engine.IsClass(err, engine.ClassConfig))
		assert.Empty(t, fake.Calls())
	})

	t.Run("missing role result", func(t *testing.T) {
		fake := cloudtest.New()
		_, err := functionFixture(t, nil).Reconcile(context.Background(), newRun(fake))
		require.Error(t, err)
		assert.True(t, engine.IsClass(err, engine.ClassConfig))
		assert.Contains(t, err.Error(), "api/role")
	})

	t.Run("fatal create error", func(t *testing.T) {
		fake := cloudtest.New()
		fake.Fail("CreateFunction", cloud.Fatal("CreateFunction", "AccessDeniedException", "denied"), 1)

		_, err := functionFixture(t, nil).Reconcile(context.Background(), runWithRole(fake))
		require.Error(t, err)
		assert.True(t, engine.IsClass(err, engine.ClassProvider))
		assert.Equal(t, 1, fake.Called("CreateFunction"))
	})
}

func ptr[T any](v T) *T { return &v }
