package reconcile

import (
	"fmt"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
)

func stageName(service, kind string) string {
	return service + "/" + kind
}

// FunctionStages lays out the stages deploying a function service:
// hosted zone, role, log group (when retention is set), function with its
// triggers, certificate, gateway and DNS record.
func FunctionStages(service string, cfg *ir.FunctionConfig, own engine.Ownership) []*engine.Stage {
	m := Managed{Ownership: own}
	name := func(kind string) string { return stageName(service, kind) }
	fnName := engine.FunctionName(cfg.DomainName)

	stages := []*engine.Stage{
		{Name: name(KindHostedZone), Reconciler: &HostedZone{Domain: cfg.DomainName}},
		{Name: name(KindRole), Reconciler: &Role{Managed: m, Name: cfg.ExecutionRole}},
	}

	fnDeps := []string{name(KindRole)}
	if cfg.LogRetentionDays != nil {
		stages = append(stages, &engine.Stage{
			Name: name(KindLogGroup),
			Reconciler: &LogGroup{
				Managed:       m,
				Name:          LogGroupName(fnName),
				Region:        cfg.Region,
				RetentionDays: *cfg.LogRetentionDays,
			},
		})
		fnDeps = append(fnDeps, name(KindLogGroup))
	}

	stages = append(stages,
		&engine.Stage{
			Name:       name(KindFunction),
			DependsOn:  fnDeps,
			Reconciler: &Function{Managed: m, Config: *cfg, RoleStage: name(KindRole), Stage: name(KindFunction)},
		},
		&engine.Stage{
			Name:      name(KindCertificate),
			DependsOn: []string{name(KindHostedZone)},
			Reconciler: &Certificate{
				Managed:   m,
				Domain:    cfg.DomainName,
				Region:    cfg.Region,
				ZoneStage: name(KindHostedZone),
				Stage:     name(KindCertificate),
			},
		},
		&engine.Stage{
			Name:      name(KindGateway),
			DependsOn: []string{name(KindFunction), name(KindCertificate)},
			Reconciler: &Gateway{
				Managed:          m,
				Domain:           cfg.DomainName,
				Region:           cfg.Region,
				FunctionStage:    name(KindFunction),
				CertificateStage: name(KindCertificate),
				Stage:            name(KindGateway),
			},
		},
		&engine.Stage{
			Name:      name(KindDNSRecord),
			DependsOn: []string{name(KindHostedZone), name(KindGateway)},
			Reconciler: &DNSRecord{
				Domain:      cfg.DomainName,
				ZoneStage:   name(KindHostedZone),
				TargetStage: name(KindGateway),
				Stage:       name(KindDNSRecord),
			},
		},
	)
	return stages
}

// WebsiteStages lays out the stages deploying a website service: hosted
// zone, bucket, content, certificate, distribution and DNS record. The
// certificate always lives in the global region because the CDN only reads
// certificates from there.
func WebsiteStages(service string, cfg *ir.WebsiteConfig, own engine.Ownership) []*engine.Stage {
	m := Managed{Ownership: own}
	name := func(kind string) string { return stageName(service, kind) }

	return []*engine.Stage{
		{Name: name(KindHostedZone), Reconciler: &HostedZone{Domain: cfg.DomainName}},
		{
			Name:       name(KindBucket),
			Reconciler: &Bucket{Managed: m, Name: cfg.DomainName, Region: cfg.Region, IndexPage: cfg.IndexPage},
		},
		{
			Name:      name(KindContent),
			DependsOn: []string{name(KindBucket)},
			Reconciler: &Content{
				Bucket:            cfg.DomainName,
				Region:            cfg.Region,
				Dir:               cfg.SourceDirectory,
				IndexPage:         cfg.IndexPage,
				ImmutablePatterns: cfg.ImmutableFilePatterns,
				BucketStage:       name(KindBucket),
				Stage:             name(KindContent),
			},
		},
		{
			Name:      name(KindCertificate),
			DependsOn: []string{name(KindHostedZone)},
			Reconciler: &Certificate{
				Managed:   m,
				Domain:    cfg.DomainName,
				Region:    GlobalRegion,
				ZoneStage: name(KindHostedZone),
				Stage:     name(KindCertificate),
			},
		},
		{
			Name:      name(KindDistribution),
			DependsOn: []string{name(KindBucket), name(KindContent), name(KindCertificate)},
			Reconciler: &Distribution{
				Managed:          m,
				Domain:           cfg.DomainName,
				PriceClass:       cfg.PriceClass,
				IndexPage:        cfg.IndexPage,
				BucketStage:      name(KindBucket),
				ContentStage:     name(KindContent),
				CertificateStage: name(KindCertificate),
				Stage:            name(KindDistribution),
			},
		},
		{
			Name:      name(KindDNSRecord),
			DependsOn: []string{name(KindHostedZone), name(KindDistribution)},
			Reconciler: &DNSRecord{
				Domain:      cfg.DomainName,
				ZoneStage:   name(KindHostedZone),
				TargetStage: name(KindDistribution),
				Stage:       name(KindDNSRecord),
			},
		},
	}
}

// ProjectOwnership returns the ownership rules of function and website
// services.
func ProjectOwnership(p *ir.Project) (functions, websites engine.Ownership) {
	functions = engine.DefaultOwnership().Extend(p.Ownership.Recognized...)
	websites = functions.Extend(p.Ownership.WebsiteRecognized...)
	return functions, websites
}

// ServiceStages returns the stages of the named services, or of every
// service when names is empty. The project must be normalized.
func ServiceStages(p *ir.Project, names ...string) ([]*engine.Stage, error) {
	fnOwn, siteOwn := ProjectOwnership(p)

	selected := p.Services
	if len(names) > 0 {
		selected = nil
		for _, n := range names {
			s, ok := p.Service(n)
			if !ok {
				return nil, engine.ConfigError(n, "unknown service %q", n)
			}
			selected = append(selected, s)
		}
	}

	var stages []*engine.Stage
	for _, s := range selected {
		switch s.Kind {
		case ir.KindFunction:
			stages = append(stages, FunctionStages(s.Name, s.Function, fnOwn)...)
		case ir.KindWebsite:
			stages = append(stages, WebsiteStages(s.Name, s.Website, siteOwn)...)
		default:
			return nil, fmt.Errorf("service %s has unknown kind %q", s.Name, s.Kind)
		}
	}
	return stages, nil
}

// ServiceURL is the public address of a deployed service.
func ServiceURL(s *ir.Service) string {
	return "https://" + s.DomainName()
}
