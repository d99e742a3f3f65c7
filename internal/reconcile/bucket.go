package reconcile

import (
	"context"
	"strings"

	"github.com/picklr-io/shipyard/internal/engine"
)

// Regions whose website endpoint uses a dash before the region name.
var dashWebsiteRegions = map[string]bool{
	"us-east-1":      true,
	"us-west-1":      true,
	"us-west-2":      true,
	"sa-east-1":      true,
	"ap-northeast-1": true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"eu-west-1":      true,
}

// WebsiteEndpoint returns the website hosting endpoint of a bucket.
func WebsiteEndpoint(bucket, region string) string {
	suffix := ".amazonaws.com"
	if strings.HasPrefix(region, "cn-") {
		suffix += ".cn"
	}
	if dashWebsiteRegions[region] {
		return bucket + ".s3-website-" + region + suffix
	}
	return bucket + ".s3-website." + region + suffix
}

// Bucket converges the website bucket named after the domain.
type Bucket struct {
	Managed
	Name      string
	Region    string
	IndexPage string
}

func (b *Bucket) Kind() string { return KindBucket }

func (b *Bucket) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	log := logger(run, KindBucket, b.Name)
	c, err := run.Clients(ctx, b.Region)
	if err != nil {
		return nil, err
	}

	current, err := c.Buckets.GetBucket(ctx, b.Name)
	if err != nil {
		return nil, providerErr("get bucket", b.Name, err)
	}

	if current == nil {
		if err := c.Buckets.CreateBucket(ctx, b.Name, b.Region, b.owner(run).Tags()); err != nil {
			return nil, providerErr("create bucket", b.Name, err)
		}
		err := run.Wait(ctx, "bucket "+b.Name+" to exist", engine.BucketAvailablePolicy, func(ctx context.Context) (engine.Status, error) {
			ok, err := c.Buckets.BucketExists(ctx, b.Name)
			if err != nil || !ok {
				return engine.Pending(), err
			}
			return engine.Succeeded(), nil
		})
		if err != nil {
			return nil, err
		}
		if err := c.Buckets.PutBucketWebsite(ctx, b.Name, b.IndexPage); err != nil {
			return nil, providerErr("configure bucket website", b.Name, err)
		}
		log.Info("bucket created", "region", b.Region)
		return b.result(engine.Created), nil
	}

	if err := b.owner(run).Check("bucket", b.Name, current.Tags); err != nil {
		return nil, err
	}
	if current.Region != b.Region {
		return nil, engine.ConfigError(b.Name, "bucket exists in region %s but the service is configured for %s", current.Region, b.Region)
	}
	if current.IndexDocument == b.IndexPage {
		return b.result(engine.Unchanged), nil
	}
	if err := c.Buckets.PutBucketWebsite(ctx, b.Name, b.IndexPage); err != nil {
		return nil, providerErr("configure bucket website", b.Name, err)
	}
	log.Info("bucket index document updated", "index_page", b.IndexPage)
	return b.result(engine.Updated), nil
}

func (b *Bucket) result(o engine.Outcome) *engine.Result {
	return &engine.Result{
		Outcome:  o,
		RemoteID: b.Name,
		Outputs: map[string]string{
			OutputName:     b.Name,
			OutputEndpoint: WebsiteEndpoint(b.Name, b.Region),
		},
	}
}
