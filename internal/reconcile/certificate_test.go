package reconcile

import (
	"context"
	"testing"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/cloud/cloudtest"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func certificateFixture(fake *cloudtest.Cloud, region string) (*Certificate, *engine.Run, cloud.HostedZone) {
	zone := fake.AddZone("example.com")
	run := newRun(fake)
	run.SetResult("api/hosted-zone", &engine.Result{RemoteID: zone.ID})
	c := &Certificate{Domain: "api.example.com", Region: region, ZoneStage: "api/hosted-zone", Stage: "api/certificate"}
	return c, run, zone
}

func TestCertificate_RequestsAndValidates(t *testing.T) {
	fake := cloudtest.New()
	c, run, zone := certificateFixture(fake, "eu-west-1")

	res, err := c.Reconcile(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
	assert.Equal(t, res.RemoteID, res.Output(OutputARN))

	cert, ok := fake.Certificate("eu-west-1", res.RemoteID)
	require.True(t, ok)
	assert.Equal(t, cloud.CertificateIssued, cert.Status)
	assert.Equal(t, engine.OwnershipTagValue, cert.Tags[engine.OwnershipTagKey])
	require.Len(t, cert.Validation, 1)

	record, ok := fake.Record(zone.ID, cert.Validation[0].Name, "CNAME")
	require.True(t, ok)
	assert.Equal(t, int64(300), record.TTL)
	assert.Equal(t, []string{cert.Validation[0].Value}, record.Values)

	fake.ResetCalls()
	res, err = c.Reconcile(context.Background(), newRunWith(fake, "api/hosted-zone", zone.ID))
	require.NoError(t, err)
	assert.Equal(t, engine.Unchanged, res.Outcome)
	assert.Empty(t, fake.Mutations())
}

func TestCertificate_ReusesIssued(t *testing.T) {
	tests := []struct {
		name  string
		certs []cloud.CertificateState
		want  int
	}{
		{
			name:  "exact name",
			certs: []cloud.CertificateState{{DomainName: "api.example.com", Status: cloud.CertificateIssued, Tags: ours()}},
			want:  0,
		},
		{
			name:  "wildcard created by someone else",
			certs: []cloud.CertificateState{{DomainName: "*.example.com", Status: cloud.CertificateIssued, Tags: foreign()}},
			want:  0,
		},
		{
			name: "exact preferred over wildcard",
			certs: []cloud.CertificateState{
				{DomainName: "*.example.com", Status: cloud.CertificateIssued},
				{DomainName: "api.example.com", Status: cloud.CertificateIssued, Tags: ours()},
			},
			want: 1,
		},
		{
			name: "issued wildcard beats pending exact",
			certs: []cloud.CertificateState{
				{DomainName: "api.example.com", Status: cloud.CertificatePendingValidation, Tags: ours()},
				{DomainName: "*.example.com", Status: cloud.CertificateIssued},
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := cloudtest.New()
			var arns []string
			for _, cert := range tt.certs {
				arns = append(arns, fake.PutCertificate("us-east-1", cert))
			}
			c, run, _ := certificateFixture(fake, "us-east-1")

			res, err := c.Reconcile(context.Background(), run)
			require.NoError(t, err)
			assert.Equal(t, engine.Unchanged, res.Outcome)
			assert.Equal(t, arns[tt.want], res.RemoteID)
			assert.Empty(t, fake.Mutations())
		})
	}
}

func TestCertificate_AdoptsOwnedPending(t *testing.T) {
	fake := cloudtest.New()
	arn := fake.PutCertificate("us-east-1", cloud.CertificateState{
		DomainName: "api.example.com",
		Status:     cloud.CertificatePendingValidation,
		Validation: []cloud.ValidationRecord{{Name: "_abc.api.example.com", Type: "CNAME", Value: "_abc.acm-validations.aws"}},
		Tags:       ours(),
	})
	c, run, zone := certificateFixture(fake, "us-east-1")

	res, err := c.Reconcile(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, engine.Updated, res.Outcome)
	assert.Equal(t, arn, res.RemoteID)
	assert.Zero(t, fake.Called("RequestCertificate"))

	_, ok := fake.Record(zone.ID, "_abc.api.example.com", "CNAME")
	assert.True(t, ok)
}

func TestCertificate_IgnoresForeignPending(t *testing.T) {
	fake := cloudtest.New()
	foreignARN := fake.PutCertificate("us-east-1", cloud.CertificateState{
		DomainName: "api.example.com",
		Status:     cloud.CertificatePendingValidation,
		Tags:       foreign(),
	})
	c, run, _ := certificateFixture(fake, "us-east-1")

	res, err := c.Reconcile(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
	assert.NotEqual(t, foreignARN, res.RemoteID)
	assert.Equal(t, 1, fake.Called("RequestCertificate"))
}

func TestCertificate_SkipsCertificatesNotCoveringName(t *testing.T) {
	fake := cloudtest.New()
	fake.PutCertificate("us-east-1", cloud.CertificateState{
		DomainName:              "api.example.com",
		Status:                  cloud.CertificateIssued,
		SubjectAlternativeNames: []string{"www.example.com"},
	})
	c, run, _ := certificateFixture(fake, "us-east-1")

	res, err := c.Reconcile(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, engine.Created, res.Outcome)
}

func TestCertificate_TruncatedListing(t *testing.T) {
	fake := cloudtest.New()
	fake.Truncate("ListCertificates")
	c, run, _ := certificateFixture(fake, "us-east-1")

	_, err := c.Reconcile(context.Background(), run)
	require.Error(t, err)
	assert.True(t, engine.IsClass(err, engine.ClassListingOverflow))
	assert.Empty(t, fake.Mutations())
}

func newRunWith(fake *cloudtest.Cloud, stage, remoteID string) *engine.Run {
	run := newRun(fake)
	run.SetResult(stage, &engine.Result{RemoteID: remoteID})
	return run
}
