package reconcile

import (
	"context"
	"slices"
	"sort"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// Certificate finds or requests a DNS-validated certificate for Domain in
// Region. An issued certificate covering the domain is used as is, even a
// wildcard created by someone else, since using it changes nothing.
type Certificate struct {
	Managed
	Domain    string
	Region    string
	ZoneStage string
	Stage     string
}

func (c *Certificate) Kind() string { return KindCertificate }

func (c *Certificate) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	domain := engine.CanonicalDomain(c.Domain)
	log := logger(run, KindCertificate, domain).With("region", c.Region)

	clients, err := run.Clients(ctx, c.Region)
	if err != nil {
		return nil, err
	}

	issued, pending, err := c.find(ctx, run, clients.Certificates, domain)
	if err != nil {
		return nil, err
	}
	if issued != nil {
		log.Debug("using issued certificate", "arn", issued.ARN, "name", issued.DomainName)
		return certificateResult(engine.Unchanged, issued.ARN), nil
	}

	o := engine.Updated
	arn := ""
	if pending != nil {
		arn = pending.ARN
		log.Info("resuming validation of pending certificate", "arn", arn)
	} else {
		arn, err = clients.Certificates.RequestCertificate(ctx, domain, c.owner(run).Tags())
		if err != nil {
			return nil, providerErr("request certificate", domain, err)
		}
		o = engine.Created
		log.Info("certificate requested", "arn", arn)
	}

	if err := c.validate(ctx, run, clients.Certificates, arn); err != nil {
		return nil, err
	}
	run.Forget(certificateCacheKey(c.Region, domain))
	log.Info("certificate issued", "arn", arn)
	return certificateResult(o, arn), nil
}

func certificateResult(o engine.Outcome, arn string) *engine.Result {
	return &engine.Result{Outcome: o, RemoteID: arn, Outputs: map[string]string{OutputARN: arn}}
}

func certificateCacheKey(region, domain string) string {
	return "certificate/" + region + "/" + domain
}

type certificateMatch struct {
	issued  *cloud.CertificateState
	pending *cloud.CertificateState
}

// find looks for an issued certificate covering domain, or failing that a
// pending one we own. Exact names are tried before the wildcard.
func (c *Certificate) find(ctx context.Context, run *engine.Run, certs cloud.Certificates, domain string) (*cloud.CertificateState, *cloud.CertificateState, error) {
	m, err := engine.Lookup(run, certificateCacheKey(c.Region, domain), func() (certificateMatch, error) {
		listing, err := certs.ListCertificates(ctx)
		if err != nil {
			return certificateMatch{}, providerErr("list certificates", domain, err)
		}
		if listing.Truncated {
			return certificateMatch{}, engine.ListingOverflowError("ListCertificates", len(listing.Certificates)).WithResource(domain)
		}

		names := []string{domain}
		if root, ok := engine.RootDomain(domain); ok {
			names = append(names, "*."+root)
		}

		var candidates []cloud.CertificateSummary
		for _, s := range listing.Certificates {
			if slices.Contains(names, engine.CanonicalDomain(s.DomainName)) {
				candidates = append(candidates, s)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return len(candidates[i].DomainName) > len(candidates[j].DomainName)
		})

		var m certificateMatch
		for _, s := range candidates {
			st, err := certs.DescribeCertificate(ctx, s.ARN)
			if err != nil {
				return certificateMatch{}, providerErr("describe certificate", s.ARN, err)
			}
			if st == nil || !coversName(st, s.DomainName) {
				continue
			}
			switch {
			case st.Status == cloud.CertificateIssued && m.issued == nil:
				m.issued = st
			case st.Status == cloud.CertificatePendingValidation && m.pending == nil && c.owner(run).Owns(st.Tags):
				m.pending = st
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m.issued, m.pending, nil
}

func coversName(st *cloud.CertificateState, name string) bool {
	name = engine.CanonicalDomain(name)
	for _, san := range st.SubjectAlternativeNames {
		if engine.CanonicalDomain(san) == name {
			return true
		}
	}
	return false
}

// validate publishes the validation record and waits for issuance.
func (c *Certificate) validate(ctx context.Context, run *engine.Run, certs cloud.Certificates, arn string) error {
	zone, err := dependency(run, c.Stage, c.ZoneStage)
	if err != nil {
		return err
	}

	var record cloud.ValidationRecord
	err = run.Wait(ctx, "certificate validation record", engine.ValidationRecordPolicy, func(ctx context.Context) (engine.Status, error) {
		st, err := certs.DescribeCertificate(ctx, arn)
		if err != nil {
			return engine.Status{}, err
		}
		if st == nil || len(st.Validation) == 0 {
			return engine.Pending(), nil
		}
		record = st.Validation[0]
		return engine.Succeeded(), nil
	})
	if err != nil {
		return err
	}

	global, err := run.Clients(ctx, GlobalRegion)
	if err != nil {
		return err
	}
	want := cloud.RecordState{
		Name:   engine.CanonicalDomain(record.Name),
		Type:   record.Type,
		TTL:    300,
		Values: []string{record.Value},
	}
	current, err := global.DNS.FindRecord(ctx, zone.RemoteID, want.Name, want.Type)
	if err != nil {
		return providerErr("find validation record", want.Name, err)
	}
	if current == nil || !slices.Equal(current.Values, want.Values) {
		if err := upsertRecord(ctx, run, global.DNS, zone.RemoteID, want); err != nil {
			return err
		}
	}

	return run.Wait(ctx, "certificate issuance", engine.CertificateIssuePolicy, func(ctx context.Context) (engine.Status, error) {
		st, err := certs.DescribeCertificate(ctx, arn)
		if err != nil {
			return engine.Status{}, err
		}
		switch {
		case st == nil:
			return engine.Failed("certificate disappeared"), nil
		case st.Status == cloud.CertificateIssued:
			return engine.Succeeded(), nil
		case st.Status == cloud.CertificatePendingValidation:
			return engine.Pending(), nil
		}
		return engine.Failed(st.Status + ": " + st.FailureReason), nil
	})
}
