package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud/cloudtest"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProject(t *testing.T) *ir.Project {
	t.Helper()
	code := t.TempDir()
	writeFiles(t, code, map[string]string{"handler.js": "exports.handler = async () => ({})"})
	site := t.TempDir()
	writeFiles(t, site, map[string]string{
		"index.html":             "<h1>home</h1>",
		"app.immutable.js":       "console.log(1)",
		"about/index.html":       "<h1>about</h1>",
		"assets/logo.svg":        "<svg/>",
		"assets/.DS_Store":       "junk",
		"assets/app.immutable.c": "x",
	})

	p := &ir.Project{
		Name: "demo",
		Services: []*ir.Service{
			{
				Name: "api",
				Kind: ir.KindFunction,
				Function: &ir.FunctionConfig{
					DomainName:       "api.example.com",
					CodeDirectory:    code,
					LogRetentionDays: ptr[int32](14),
					Triggers:         []ir.TriggerConfig{{Path: "jobs/cleanup", RateMs: 3600000}},
				},
			},
			{
				Name:    "www",
				Kind:    ir.KindWebsite,
				Website: &ir.WebsiteConfig{DomainName: "www.example.com", SourceDirectory: site},
			},
		},
	}
	require.NoError(t, p.Normalize())
	return p
}

func stageNames(stages []*engine.Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}

func TestServiceStages_Layout(t *testing.T) {
	p := testProject(t)

	stages, err := ServiceStages(p)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"api/hosted-zone", "api/role", "api/log-group", "api/function",
		"api/certificate", "api/gateway", "api/dns-record",
		"www/hosted-zone", "www/bucket", "www/content", "www/certificate",
		"www/distribution", "www/dns-record",
	}, stageNames(stages))

	for _, s := range stages {
		assert.Equal(t, s.Name[len(s.Name)-len(s.Kind()):], s.Kind(), "stage %s", s.Name)
	}

	_, err = engine.BuildDAG(stages)
	require.NoError(t, err)

	websiteOnly, err := ServiceStages(p, "www")
	require.NoError(t, err)
	assert.Len(t, websiteOnly, 6)
	cert := websiteOnly[3].Reconciler.(*Certificate)
	assert.Equal(t, GlobalRegion, cert.Region)

	_, err = ServiceStages(p, "nope")
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassConfig))
}

func TestFunctionStages_WithoutLogRetention(t *testing.T) {
	p := testProject(t)
	p.Services[0].Function.LogRetentionDays = nil

	stages := FunctionStages("api", p.Services[0].Function, engine.DefaultOwnership())
	assert.NotContains(t, stageNames(stages), "api/log-group")
	for _, s := range stages {
		if s.Name == "api/function" {
			assert.Equal(t, []string{"api/role"}, s.DependsOn)
		}
	}
}

func TestProjectOwnership(t *testing.T) {
	p := &ir.Project{Ownership: ir.OwnershipConfig{Recognized: []string{"old-tool"}, WebsiteRecognized: []string{"site-tool"}}}
	fn, site := ProjectOwnership(p)
	assert.Equal(t, []string{engine.OwnershipTagValue, "old-tool"}, fn.Recognized)
	assert.Equal(t, []string{engine.OwnershipTagValue, "old-tool", "site-tool"}, site.Recognized)
}

func TestDeploy_EndToEnd(t *testing.T) {
	fake := cloudtest.New()
	zone := fake.AddZone("example.com")
	p := testProject(t)
	stages, err := ServiceStages(p)
	require.NoError(t, err)

	results := deploy(t, fake, stages)
	require.Len(t, results, 13)
	for _, name := range []string{"api/role", "api/log-group", "api/function", "api/certificate", "api/gateway", "api/dns-record", "www/bucket", "www/certificate", "www/distribution", "www/dns-record"} {
		assert.Equal(t, engine.Created, results[name].Outcome, name)
	}
	assert.Equal(t, engine.Updated, results["www/content"].Outcome)
	assert.Equal(t, engine.Unchanged, results["api/hosted-zone"].Outcome)

	apiRecord, ok := fake.Record(zone.ID, "api.example.com", "A")
	require.True(t, ok)
	assert.Equal(t, "Z1UJRXOUMOOFQ8", apiRecord.Alias.HostedZoneID)

	wwwRecord, ok := fake.Record(zone.ID, "www.example.com", "A")
	require.True(t, ok)
	assert.Equal(t, CloudFrontZoneID, wwwRecord.Alias.HostedZoneID)
	assert.Equal(t, results["www/distribution"].Output(OutputTargetDomain), wwwRecord.Alias.DNSName)

	obj, ok := fake.Object("www.example.com", "assets/app.immutable.c")
	require.True(t, ok)
	assert.NotEmpty(t, obj.CacheControl)
	_, ok = fake.Object("www.example.com", "assets/.DS_Store")
	assert.False(t, ok)

	assert.Equal(t, "https://www.example.com", ServiceURL(p.Services[1]))

	fake.ResetCalls()
	results = deploy(t, fake, stages)
	for name, res := range results {
		assert.Equal(t, engine.Unchanged, res.Outcome, name)
	}
	assert.Empty(t, fake.Mutations())
}

func TestDeploy_SkipUsesLedger(t *testing.T) {
	fake := cloudtest.New()
	fake.AddZone("example.com")
	p := testProject(t)
	stages, err := ServiceStages(p, "api")
	require.NoError(t, err)

	first, err := (&engine.Orchestrator{}).Run(context.Background(), newRun(fake), stages, nil)
	require.NoError(t, err)
	ledger := &ir.Ledger{}
	ledger.Record(first)

	t.Run("with prior result", func(t *testing.T) {
		fake.ResetCalls()
		results, err := (&engine.Orchestrator{Prior: ledger}).Run(context.Background(), newRun(fake), stages, engine.NewSkipSet("function"))
		require.NoError(t, err)
		assert.Len(t, results, len(stages))
		assert.Zero(t, fake.Called("GetFunction"))
		for _, r := range results {
			if r.Stage == "api/function" {
				assert.Equal(t, engine.Skipped, r.Outcome)
				assert.Equal(t, ledger.Results["api/function"].RemoteID, r.RemoteID)
			}
		}
	})

	t.Run("without prior result", func(t *testing.T) {
		fake.ResetCalls()
		_, err := (&engine.Orchestrator{}).Run(context.Background(), newRun(fake), stages, engine.NewSkipSet("api/function"))
		require.Error(t, err)
		var stageErr *engine.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, "api/gateway", stageErr.Stage)
		assert.True(t, engine.IsClass(err, engine.ClassConfig))
		assert.Zero(t, fake.Called("ListAPIs"))
	})
}
