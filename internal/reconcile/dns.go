package reconcile

import (
	"context"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// DNSRecord points Domain at the endpoint published by TargetStage through
// an alias A record. Record sets carry no tags: an existing plain A record
// or CNAME at the name was put there by someone else and is refused.
type DNSRecord struct {
	Domain      string
	ZoneStage   string
	TargetStage string
	Stage       string
}

func (d *DNSRecord) Kind() string { return KindDNSRecord }

func (d *DNSRecord) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	domain := engine.CanonicalDomain(d.Domain)
	log := logger(run, KindDNSRecord, domain)

	zone, err := dependency(run, d.Stage, d.ZoneStage)
	if err != nil {
		return nil, err
	}
	target, err := dependency(run, d.Stage, d.TargetStage)
	if err != nil {
		return nil, err
	}
	alias := &cloud.AliasTarget{
		DNSName:      engine.CanonicalDomain(target.Output(OutputTargetDomain)),
		HostedZoneID: target.Output(OutputTargetZoneID),
	}
	if alias.DNSName == "" || alias.HostedZoneID == "" {
		return nil, engine.ConfigError(d.Stage, "%s published no alias target", d.TargetStage)
	}

	c, err := run.Clients(ctx, GlobalRegion)
	if err != nil {
		return nil, err
	}
	zoneID := zone.RemoteID

	cname, err := c.DNS.FindRecord(ctx, zoneID, domain, "CNAME")
	if err != nil {
		return nil, providerErr("find DNS record", domain, err)
	}
	if cname != nil {
		return nil, engine.OwnershipError("DNS record", domain+" CNAME", "")
	}

	current, err := c.DNS.FindRecord(ctx, zoneID, domain, "A")
	if err != nil {
		return nil, providerErr("find DNS record", domain, err)
	}
	if current != nil && current.Alias == nil {
		return nil, engine.OwnershipError("DNS record", domain+" A", "")
	}
	if current != nil && aliasEqual(current.Alias, alias) {
		return &engine.Result{Outcome: engine.Unchanged, RemoteID: domain}, nil
	}

	if err := upsertRecord(ctx, run, c.DNS, zoneID, cloud.RecordState{Name: domain, Type: "A", Alias: alias}); err != nil {
		return nil, err
	}
	o := engine.Created
	if current != nil {
		o = engine.Updated
	}
	log.Info("DNS record converged", "target", alias.DNSName, "outcome", o)
	return &engine.Result{Outcome: o, RemoteID: domain}, nil
}

func aliasEqual(a, b *cloud.AliasTarget) bool {
	return engine.CanonicalDomain(a.DNSName) == engine.CanonicalDomain(b.DNSName) && a.HostedZoneID == b.HostedZoneID
}
