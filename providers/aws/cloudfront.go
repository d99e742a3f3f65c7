package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
	"github.com/picklr-io/shipyard/internal/cloud"
)

// maxListPages bounds every paginated listing.
const maxListPages = 20

const originID = "website"

type distributions struct {
	client *cloudfront.Client
}

func (d *distributions) ListDistributions(ctx context.Context) (*cloud.DistributionListing, error) {
	listing := &cloud.DistributionListing{}
	p := cloudfront.NewListDistributionsPaginator(d.client, &cloudfront.ListDistributionsInput{})
	for pages := 0; p.HasMorePages(); pages++ {
		if pages == maxListPages {
			listing.Truncated = true
			break
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("ListDistributions", err)
		}
		if page.DistributionList == nil {
			break
		}
		for _, s := range page.DistributionList.Items {
			st := cloud.DistributionState{
				ID:         aws.ToString(s.Id),
				ARN:        aws.ToString(s.ARN),
				DomainName: aws.ToString(s.DomainName),
				Status:     aws.ToString(s.Status),
				Enabled:    aws.ToBool(s.Enabled),
				PriceClass: string(s.PriceClass),
			}
			if s.Aliases != nil {
				st.Aliases = s.Aliases.Items
			}
			if s.ViewerCertificate != nil {
				st.CertificateARN = aws.ToString(s.ViewerCertificate.ACMCertificateArn)
			}
			if s.Origins != nil && len(s.Origins.Items) > 0 {
				st.OriginDomain = aws.ToString(s.Origins.Items[0].DomainName)
			}
			listing.Distributions = append(listing.Distributions, st)
		}
	}
	return listing, nil
}

func (d *distributions) GetDistribution(ctx context.Context, id string) (*cloud.DistributionState, error) {
	out, err := d.client.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("GetDistribution", err)
	}

	dist := out.Distribution
	st := &cloud.DistributionState{
		ID:         aws.ToString(dist.Id),
		ARN:        aws.ToString(dist.ARN),
		DomainName: aws.ToString(dist.DomainName),
		Status:     aws.ToString(dist.Status),
		Tags:       map[string]string{},
	}
	if cfg := dist.DistributionConfig; cfg != nil {
		st.Enabled = aws.ToBool(cfg.Enabled)
		st.PriceClass = string(cfg.PriceClass)
		if cfg.Aliases != nil {
			st.Aliases = cfg.Aliases.Items
		}
		if cfg.ViewerCertificate != nil {
			st.CertificateARN = aws.ToString(cfg.ViewerCertificate.ACMCertificateArn)
		}
		if cfg.Origins != nil && len(cfg.Origins.Items) > 0 {
			st.OriginDomain = aws.ToString(cfg.Origins.Items[0].DomainName)
		}
	}

	tags, err := d.client.ListTagsForResource(ctx, &cloudfront.ListTagsForResourceInput{Resource: dist.ARN})
	if err != nil {
		return nil, wrapErr("ListTagsForResource", err)
	}
	if tags.Tags != nil {
		for _, t := range tags.Tags.Items {
			st.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return st, nil
}

func (d *distributions) CreateDistribution(ctx context.Context, spec cloud.DistributionSpec) (*cloud.DistributionState, error) {
	items := tagList(spec.Tags, func(k, v string) types.Tag {
		return types.Tag{Key: aws.String(k), Value: aws.String(v)}
	})
	out, err := d.client.CreateDistributionWithTags(ctx, &cloudfront.CreateDistributionWithTagsInput{
		DistributionConfigWithTags: &types.DistributionConfigWithTags{
			DistributionConfig: distributionConfig(uuid.NewString(), spec),
			Tags:               &types.Tags{Items: items},
		},
	})
	if err != nil {
		return nil, wrapErr("CreateDistributionWithTags", err)
	}
	return &cloud.DistributionState{
		ID:             aws.ToString(out.Distribution.Id),
		ARN:            aws.ToString(out.Distribution.ARN),
		DomainName:     aws.ToString(out.Distribution.DomainName),
		Status:         aws.ToString(out.Distribution.Status),
		Enabled:        true,
		Aliases:        []string{spec.Alias},
		PriceClass:     spec.PriceClass,
		CertificateARN: spec.CertificateARN,
		OriginDomain:   spec.OriginDomain,
		Tags:           spec.Tags,
	}, nil
}

// UpdateDistribution replaces the managed parts of the configuration. The
// caller reference and any settings not covered by the spec are kept.
func (d *distributions) UpdateDistribution(ctx context.Context, id string, spec cloud.DistributionSpec) error {
	current, err := d.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{Id: aws.String(id)})
	if err != nil {
		return wrapErr("GetDistributionConfig", err)
	}

	desired := distributionConfig(aws.ToString(current.DistributionConfig.CallerReference), spec)
	cfg := current.DistributionConfig
	cfg.Aliases = desired.Aliases
	cfg.Origins = desired.Origins
	cfg.DefaultRootObject = desired.DefaultRootObject
	cfg.PriceClass = desired.PriceClass
	cfg.ViewerCertificate = desired.ViewerCertificate
	cfg.Enabled = desired.Enabled

	_, err = d.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(id),
		IfMatch:            current.ETag,
		DistributionConfig: cfg,
	})
	return wrapErr("UpdateDistribution", err)
}

func distributionConfig(callerRef string, spec cloud.DistributionSpec) *types.DistributionConfig {
	methods := []types.Method{types.MethodGet, types.MethodHead}
	return &types.DistributionConfig{
		CallerReference:   aws.String(callerRef),
		Comment:           aws.String(spec.Alias),
		Enabled:           aws.Bool(true),
		DefaultRootObject: aws.String(spec.IndexPage),
		PriceClass:        types.PriceClass(spec.PriceClass),
		HttpVersion:       types.HttpVersionHttp2,
		Aliases: &types.Aliases{
			Quantity: aws.Int32(1),
			Items:    []string{spec.Alias},
		},
		Origins: &types.Origins{
			Quantity: aws.Int32(1),
			Items: []types.Origin{{
				Id:         aws.String(originID),
				DomainName: aws.String(spec.OriginDomain),
				// Website endpoints only speak plain HTTP.
				CustomOriginConfig: &types.CustomOriginConfig{
					HTTPPort:             aws.Int32(80),
					HTTPSPort:            aws.Int32(443),
					OriginProtocolPolicy: types.OriginProtocolPolicyHttpOnly,
				},
			}},
		},
		DefaultCacheBehavior: &types.DefaultCacheBehavior{
			TargetOriginId:       aws.String(originID),
			ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
			Compress:             aws.Bool(true),
			AllowedMethods: &types.AllowedMethods{
				Quantity: aws.Int32(int32(len(methods))),
				Items:    methods,
				CachedMethods: &types.CachedMethods{
					Quantity: aws.Int32(int32(len(methods))),
					Items:    methods,
				},
			},
			MinTTL: aws.Int64(0),
			ForwardedValues: &types.ForwardedValues{
				Cookies:     &types.CookiePreference{Forward: types.ItemSelectionNone},
				QueryString: aws.Bool(false),
			},
		},
		ViewerCertificate: &types.ViewerCertificate{
			ACMCertificateArn:      aws.String(spec.CertificateARN),
			SSLSupportMethod:       types.SSLSupportMethodSniOnly,
			MinimumProtocolVersion: types.MinimumProtocolVersionTLSv122021,
		},
	}
}

func (d *distributions) CreateInvalidation(ctx context.Context, distributionID string, paths []string) (string, error) {
	out, err := d.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return "", wrapErr("CreateInvalidation", err)
	}
	return aws.ToString(out.Invalidation.Id), nil
}

func (d *distributions) GetInvalidationStatus(ctx context.Context, distributionID, invalidationID string) (string, error) {
	out, err := d.client.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
		DistributionId: aws.String(distributionID),
		Id:             aws.String(invalidationID),
	})
	if err != nil {
		return "", wrapErr("GetInvalidation", err)
	}
	return aws.ToString(out.Invalidation.Status), nil
}
