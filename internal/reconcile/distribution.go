package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// CloudFrontZoneID is the hosted zone of every distribution domain.
const CloudFrontZoneID = "Z2FDTNDATAQYW2"

// MaxInvalidationPaths bounds one invalidation; beyond it everything is
// invalidated at once.
const MaxInvalidationPaths = 1000

// Distribution converges the CDN distribution serving the website bucket,
// and invalidates the paths the content stage changed.
type Distribution struct {
	Managed
	Domain           string
	PriceClass       string
	IndexPage        string
	BucketStage      string
	ContentStage     string
	CertificateStage string
	Stage            string
}

func (d *Distribution) Kind() string { return KindDistribution }

func (d *Distribution) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	domain := engine.CanonicalDomain(d.Domain)
	log := logger(run, KindDistribution, domain)

	bucket, err := dependency(run, d.Stage, d.BucketStage)
	if err != nil {
		return nil, err
	}
	cert, err := dependency(run, d.Stage, d.CertificateStage)
	if err != nil {
		return nil, err
	}
	c, err := run.Clients(ctx, GlobalRegion)
	if err != nil {
		return nil, err
	}
	spec := cloud.DistributionSpec{
		Alias:          domain,
		OriginDomain:   bucket.Output(OutputEndpoint),
		CertificateARN: cert.RemoteID,
		PriceClass:     d.PriceClass,
		IndexPage:      d.IndexPage,
		Tags:           d.owner(run).Tags(),
	}

	id, err := d.find(ctx, run, c.Distributions, domain)
	if err != nil {
		return nil, err
	}

	if id == "" {
		created, err := c.Distributions.CreateDistribution(ctx, spec)
		if err != nil {
			return nil, providerErr("create distribution", domain, err)
		}
		run.Forget(distributionCacheKey(domain))
		log.Info("distribution created, waiting for deployment", "distribution_id", created.ID)
		if err := d.waitDeployed(ctx, run, c.Distributions, created.ID); err != nil {
			return nil, err
		}
		// A new distribution has nothing cached to invalidate.
		return d.result(engine.Created, created), nil
	}

	current, err := c.Distributions.GetDistribution(ctx, id)
	if err != nil {
		return nil, providerErr("get distribution", id, err)
	}
	if current == nil {
		return nil, engine.ProviderError("get distribution", fmt.Errorf("distribution %s disappeared", id)).WithResource(domain)
	}
	if err := d.owner(run).Check("distribution", current.ID, current.Tags); err != nil {
		return nil, err
	}
	if !current.Enabled {
		return nil, engine.ConfigError(current.ID, "distribution for %s is disabled; enable or delete it before deploying", domain)
	}

	res := d.result(engine.Unchanged, current)
	if current.PriceClass != spec.PriceClass || current.CertificateARN != spec.CertificateARN || current.OriginDomain != spec.OriginDomain {
		if err := c.Distributions.UpdateDistribution(ctx, current.ID, spec); err != nil {
			return nil, providerErr("update distribution", current.ID, err)
		}
		log.Info("distribution updated, waiting for deployment", "distribution_id", current.ID)
		if err := d.waitDeployed(ctx, run, c.Distributions, current.ID); err != nil {
			return nil, err
		}
		res.Merge(engine.Updated)
	}

	content, _ := run.Result(d.ContentStage)
	if paths := changedPaths(content); len(paths) > 0 {
		if err := d.invalidate(ctx, run, c.Distributions, current.ID, paths); err != nil {
			return nil, err
		}
		res.Merge(engine.Updated)
	}
	return res, nil
}

func (d *Distribution) result(o engine.Outcome, st *cloud.DistributionState) *engine.Result {
	return &engine.Result{
		Outcome:  o,
		RemoteID: st.ID,
		Outputs: map[string]string{
			OutputARN:          st.ARN,
			OutputTargetDomain: st.DomainName,
			OutputTargetZoneID: CloudFrontZoneID,
		},
	}
}

func distributionCacheKey(alias string) string {
	return "distribution/" + alias
}

// find returns the ID of the distribution serving alias, or "".
func (d *Distribution) find(ctx context.Context, run *engine.Run, dists cloud.Distributions, alias string) (string, error) {
	return engine.Lookup(run, distributionCacheKey(alias), func() (string, error) {
		listing, err := dists.ListDistributions(ctx)
		if err != nil {
			return "", providerErr("list distributions", alias, err)
		}
		if listing.Truncated {
			return "", engine.ListingOverflowError("ListDistributions", len(listing.Distributions)).WithResource(alias)
		}
		for _, st := range listing.Distributions {
			if slices.ContainsFunc(st.Aliases, func(a string) bool { return engine.CanonicalDomain(a) == alias }) {
				return st.ID, nil
			}
		}
		return "", nil
	})
}

func (d *Distribution) waitDeployed(ctx context.Context, run *engine.Run, dists cloud.Distributions, id string) error {
	return run.Wait(ctx, "distribution "+id+" deployment", engine.DistributionPolicy, func(ctx context.Context) (engine.Status, error) {
		st, err := dists.GetDistribution(ctx, id)
		if err != nil {
			return engine.Status{}, err
		}
		if st == nil {
			return engine.Failed("distribution disappeared"), nil
		}
		if st.Status == cloud.DistributionDeployed {
			return engine.Succeeded(), nil
		}
		return engine.Pending(), nil
	})
}

func (d *Distribution) invalidate(ctx context.Context, run *engine.Run, dists cloud.Distributions, id string, paths []string) error {
	if len(paths) > MaxInvalidationPaths {
		paths = []string{"/*"}
	}
	invalidationID, err := dists.CreateInvalidation(ctx, id, paths)
	if err != nil {
		return providerErr("create invalidation", id, err)
	}
	logger(run, KindDistribution, d.Domain).Info("invalidation created", "invalidation_id", invalidationID, "paths", len(paths))
	return run.Wait(ctx, "invalidation "+invalidationID, engine.InvalidationPolicy, func(ctx context.Context) (engine.Status, error) {
		status, err := dists.GetInvalidationStatus(ctx, id, invalidationID)
		if err != nil {
			return engine.Status{}, err
		}
		if status == cloud.InvalidationCompleted {
			return engine.Succeeded(), nil
		}
		return engine.Pending(), nil
	})
}
