package reconcile

import (
	"context"
	"strings"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// HostedZone finds the public zone serving Domain. It never mutates
// anything; zones are created by whoever owns the domain.
type HostedZone struct {
	Domain string
}

func (z *HostedZone) Kind() string { return KindHostedZone }

func (z *HostedZone) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	c, err := run.Clients(ctx, GlobalRegion)
	if err != nil {
		return nil, err
	}
	zone, err := FindZone(ctx, run, c.DNS, z.Domain)
	if err != nil {
		return nil, err
	}
	logger(run, KindHostedZone, z.Domain).Debug("hosted zone found", "zone_id", zone.ID, "zone", zone.Name)
	return &engine.Result{
		Outcome:  engine.Unchanged,
		RemoteID: zone.ID,
		Outputs:  map[string]string{OutputZoneID: zone.ID, OutputName: zone.Name},
	}, nil
}

// FindZone returns the public zone whose name is the longest suffix of
// domain. The lookup is cached for the run.
func FindZone(ctx context.Context, run *engine.Run, dns cloud.DNS, domain string) (cloud.HostedZone, error) {
	domain = engine.CanonicalDomain(domain)
	return engine.Lookup(run, "hosted-zone/"+domain, func() (cloud.HostedZone, error) {
		listing, err := dns.ListHostedZonesByName(ctx, domain)
		if err != nil {
			return cloud.HostedZone{}, providerErr("list hosted zones", domain, err)
		}
		if listing.Truncated {
			return cloud.HostedZone{}, engine.ListingOverflowError("ListHostedZonesByName", len(listing.Zones)).WithResource(domain)
		}

		var best cloud.HostedZone
		for _, zone := range listing.Zones {
			name := engine.CanonicalDomain(zone.Name)
			if zone.Private || (domain != name && !strings.HasSuffix(domain, "."+name)) {
				continue
			}
			if len(name) > len(best.Name) {
				best = cloud.HostedZone{ID: zone.ID, Name: name}
			}
		}
		if best.ID == "" {
			return cloud.HostedZone{}, engine.ConfigError(domain, "no public hosted zone found for %s", domain)
		}
		return best, nil
	})
}
