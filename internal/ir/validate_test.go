package ir

import (
	"testing"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFunctionConfig_Defaults(t *testing.T) {
	fn, err := NewFunctionConfig(FunctionConfig{
		DomainName:    "API.Example.com.",
		CodeDirectory: "build",
	})
	require.NoError(t, err)

	assert.Equal(t, "api.example.com", fn.DomainName)
	assert.Equal(t, DefaultRuntime, fn.Runtime)
	assert.Equal(t, DefaultHandler, fn.Handler)
	assert.Equal(t, DefaultExecutionRole, fn.ExecutionRole)
	assert.Equal(t, int32(128), fn.MemorySize)
	assert.Equal(t, int32(10), fn.TimeoutSeconds)
	assert.Equal(t, DefaultRegion, fn.Region)
	assert.Nil(t, fn.ReservedConcurrency)
}

func TestNewFunctionConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  FunctionConfig
		want string
	}{
		{"missing domain", FunctionConfig{CodeDirectory: "build"}, "domainName is required"},
		{"bad domain", FunctionConfig{DomainName: "not a domain", CodeDirectory: "build"}, "valid DNS name"},
		{"missing code", FunctionConfig{DomainName: "api.example.com"}, "codeDirectory is required"},
		{"memory too low", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", MemorySize: 64}, "memorySize must be at least 128"},
		{"timeout too high", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", TimeoutSeconds: 901}, "timeout must be at most 900"},
		{"retention", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", LogRetentionDays: ptr(int32(2))}, "logRetentionDays must be one of"},
		{"trigger rate", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", Triggers: []TriggerConfig{{Path: "jobs/x", RateMs: 90000}}}, "jobs/x"},
		{"trigger rule collision", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", Triggers: []TriggerConfig{{Path: "jobs/cleanup", RateMs: 60000}, {Path: "jobs-cleanup", RateMs: 60000}}}, "both map to rule api-example-com-jobs-cleanup"},
		{"trigger pattern", FunctionConfig{DomainName: "api.example.com", CodeDirectory: "b", Triggers: []TriggerConfig{{Path: "e", Kind: "event", EventPattern: "{"}}}, "eventPattern must be valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFunctionConfig(tt.cfg)
			require.Error(t, err)
			assert.True(t, engine.IsClass(err, engine.ClassConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewWebsiteConfig(t *testing.T) {
	site, err := NewWebsiteConfig(WebsiteConfig{DomainName: "www.example.com", SourceDirectory: "dist"})
	require.NoError(t, err)
	assert.Equal(t, "index.html", site.IndexPage)
	assert.Equal(t, "PriceClass_100", site.PriceClass)
	assert.Equal(t, []string{"**/*.immutable.*"}, site.ImmutableFilePatterns)

	site, err = NewWebsiteConfig(WebsiteConfig{DomainName: "www.example.com", SourceDirectory: "dist", ImmutableFilePatterns: []string{}})
	require.NoError(t, err)
	assert.Empty(t, site.ImmutableFilePatterns)

	_, err = NewWebsiteConfig(WebsiteConfig{DomainName: "www.example.com", SourceDirectory: "dist", ImmutableFilePatterns: []string{"assets/[a-"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid glob pattern")

	_, err = NewWebsiteConfig(WebsiteConfig{DomainName: "www.example.com", SourceDirectory: "dist", PriceClass: "PriceClass_Cheap"})
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassConfig))
}

func TestProject_Normalize(t *testing.T) {
	p := &Project{
		Name: "shop",
		Services: []*Service{
			{Name: "api", Kind: KindFunction, Function: &FunctionConfig{DomainName: "api.shop.com", CodeDirectory: "backend/build"}},
			{Name: "web", Kind: KindWebsite, Website: &WebsiteConfig{DomainName: "shop.com", SourceDirectory: "frontend/dist"}},
		},
	}
	require.NoError(t, p.Normalize())

	api, ok := p.Service("api")
	require.True(t, ok)
	assert.Equal(t, DefaultRuntime, api.Function.Runtime)
	assert.Equal(t, "shop.com", p.Services[1].DomainName())
}

func TestProject_NormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		p    *Project
	}{
		{"no services", &Project{Name: "x"}},
		{"duplicate", &Project{Name: "x", Services: []*Service{
			{Name: "a", Kind: KindWebsite, Website: &WebsiteConfig{DomainName: "a.com", SourceDirectory: "d"}},
			{Name: "a", Kind: KindWebsite, Website: &WebsiteConfig{DomainName: "b.com", SourceDirectory: "d"}},
		}}},
		{"kind mismatch", &Project{Name: "x", Services: []*Service{
			{Name: "a", Kind: KindFunction, Website: &WebsiteConfig{DomainName: "a.com", SourceDirectory: "d"}},
		}}},
		{"slash in name", &Project{Name: "x", Services: []*Service{
			{Name: "a/b", Kind: KindWebsite, Website: &WebsiteConfig{DomainName: "a.com", SourceDirectory: "d"}},
		}}},
		{"s3 ledger without bucket", &Project{Name: "x", Ledger: LedgerConfig{Backend: "s3"}, Services: []*Service{
			{Name: "a", Kind: KindWebsite, Website: &WebsiteConfig{DomainName: "a.com", SourceDirectory: "d"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Normalize()
			require.Error(t, err)
			assert.True(t, engine.IsClass(err, engine.ClassConfig))
		})
	}
}

func TestLedger_Record(t *testing.T) {
	l := &Ledger{}
	l.Record([]*engine.Result{
		{Stage: "api/function", Outcome: engine.Created, RemoteID: "arn:fn"},
		{Stage: "api/certificate", Outcome: engine.Skipped, RemoteID: "arn:cert"},
	})

	r, ok := l.PriorResult("api/function")
	require.True(t, ok)
	assert.Equal(t, "arn:fn", r.RemoteID)

	_, ok = l.PriorResult("api/certificate")
	assert.False(t, ok)

	var nilLedger *Ledger
	_, ok = nilLedger.PriorResult("x")
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
