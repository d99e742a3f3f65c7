package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/cloud/cloudtest"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(fake *cloudtest.Cloud) *engine.Run {
	return engine.NewRun(fake, engine.WithClock(enginetest.NewClock()))
}

func ours() map[string]string {
	return map[string]string{engine.OwnershipTagKey: engine.OwnershipTagValue}
}

func foreign() map[string]string {
	return map[string]string{engine.OwnershipTagKey: "someone-else"}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

// deploy runs stages with a fresh run and fails the test on error.
func deploy(t *testing.T, fake *cloudtest.Cloud, stages []*engine.Stage) map[string]*engine.Result {
	t.Helper()
	results, err := (&engine.Orchestrator{}).Run(context.Background(), newRun(fake), stages, nil)
	require.NoError(t, err)
	byStage := make(map[string]*engine.Result, len(results))
	for _, r := range results {
		byStage[r.Stage] = r
	}
	return byStage
}

func TestHostedZone_LongestSuffix(t *testing.T) {
	fake := cloudtest.New()
	fake.AddZone("example.com")
	sub := fake.AddZone("api.example.com")
	fake.AddZone("other.com")

	res, err := (&HostedZone{Domain: "v1.API.example.com."}).Reconcile(context.Background(), newRun(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, res.Outcome)
	assert.Equal(t, sub.ID, res.RemoteID)
	assert.Equal(t, "api.example.com", res.Output(OutputName))
}

func TestHostedZone_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*cloudtest.Cloud)
		class engine.ErrorClass
	}{
		{
			name:  "no matching zone",
			setup: func(c *cloudtest.Cloud) { c.AddZone("other.com") },
			class: engine.ClassConfig,
		},
		{
			name:  "suffix without label boundary",
			setup: func(c *cloudtest.Cloud) { c.AddZone("ample.com") },
			class: engine.ClassConfig,
		},
		{
			name: "truncated listing",
			setup: func(c *cloudtest.Cloud) {
				c.AddZone("example.com")
				c.Truncate("ListHostedZonesByName")
			},
			class: engine.ClassListingOverflow,
		},
		{
			name:  "provider failure",
			setup: func(c *cloudtest.Cloud) { c.Fail("ListHostedZonesByName", cloud.Fatal("ListHostedZonesByName", "AccessDenied", "denied"), 1) },
			class: engine.ClassProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := cloudtest.New()
			tt.setup(fake)
			_, err := (&HostedZone{Domain: "example.com"}).Reconcile(context.Background(), newRun(fake))
			require.Error(t, err)
			assert.True(t, engine.IsClass(err, tt.class), "got %v", err)
		})
	}
}

func TestFindZone_CachedPerRun(t *testing.T) {
	fake := cloudtest.New()
	fake.AddZone("example.com")
	run := newRun(fake)
	c, err := run.Clients(context.Background(), GlobalRegion)
	require.NoError(t, err)

	for range 3 {
		_, err := FindZone(context.Background(), run, c.DNS, "example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.Called("ListHostedZonesByName"))
}

func TestRole(t *testing.T) {
	t.Run("creates role with logging policy", func(t *testing.T) {
		fake := cloudtest.New()
		res, err := (&Role{Name: "exec-role"}).Reconcile(context.Background(), newRun(fake))
		require.NoError(t, err)
		assert.Equal(t, engine.Created, res.Outcome)
		assert.Equal(t, "arn:aws:iam::123456789012:role/exec-role", res.RemoteID)

		doc, ok := fake.RolePolicy("exec-role", RolePolicyName)
		require.True(t, ok)
		assert.Contains(t, doc, "logs:*")
	})

	t.Run("retries policy while role propagates", func(t *testing.T) {
		fake := cloudtest.New()
		fake.Fail("PutRolePolicy", cloud.Retryable("PutRolePolicy", "NoSuchEntity", "not yet"), 2)
		res, err := (&Role{Name: "exec-role"}).Reconcile(context.Background(), newRun(fake))
		require.NoError(t, err)
		assert.Equal(t, engine.Created, res.Outcome)
		assert.Equal(t, 3, fake.Called("PutRolePolicy"))
	})

	t.Run("owned role is unchanged", func(t *testing.T) {
		fake := cloudtest.New()
		fake.PutRole(cloud.RoleState{Name: "exec-role", Tags: ours()})
		res, err := (&Role{Name: "exec-role"}).Reconcile(context.Background(), newRun(fake))
		require.NoError(t, err)
		assert.Equal(t, engine.Unchanged, res.Outcome)
		assert.Empty(t, fake.Mutations())
	})

	t.Run("foreign role is refused", func(t *testing.T) {
		fake := cloudtest.New()
		fake.PutRole(cloud.RoleState{Name: "exec-role", Tags: foreign()})
		_, err := (&Role{Name: "exec-role"}).Reconcile(context.Background(), newRun(fake))
		require.Error(t, err)
		assert.True(t, engine.IsClass(err, engine.ClassOwnership))
		assert.Empty(t, fake.Mutations())
	})

	t.Run("older tag value accepted when recognized", func(t *testing.T) {
		fake := cloudtest.New()
		fake.PutRole(cloud.RoleState{Name: "exec-role", Tags: map[string]string{engine.OwnershipTagKey: "shipyard-v0"}})
		r := &Role{Managed: Managed{Ownership: engine.DefaultOwnership().Extend("shipyard-v0")}, Name: "exec-role"}
		res, err := r.Reconcile(context.Background(), newRun(fake))
		require.NoError(t, err)
		assert.Equal(t, engine.Unchanged, res.Outcome)
	})
}

func TestLogGroup(t *testing.T) {
	name := LogGroupName("api-example-com")
	assert.Equal(t, "/aws/lambda/api-example-com", name)

	fake := cloudtest.New()
	lg := &LogGroup{Name: name, Region: "eu-west-1", RetentionDays: 14}

	res, err := lg.Reconcile(context.Background(), newRun(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
	got, ok := fake.LogGroup(name)
	require.True(t, ok)
	require.NotNil(t, got.RetentionDays)
	assert.Equal(t, int32(14), *got.RetentionDays)

	fake.ResetCalls()
	res, err = lg.Reconcile(context.Background(), newRun(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, res.Outcome)
	assert.Empty(t, fake.Mutations())

	lg.RetentionDays = 30
	res, err = lg.Reconcile(context.Background(), newRun(fake))
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, res.Outcome)
	got, _ = fake.LogGroup(name)
	assert.Equal(t, int32(30), *got.RetentionDays)
}
