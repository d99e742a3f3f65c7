// Package aws implements the Cloud API client on top of the AWS SDK.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/picklr-io/shipyard/internal/cloud"
)

// Provider hands out SDK-backed clients. Clients are built once per region
// and shared by every reconciler of a run.
type Provider struct {
	profile string

	mu        sync.Mutex
	configs   map[string]aws.Config
	clients   map[string]*cloud.Clients
	resolvers map[string]*ParameterResolver
}

// Option customizes a Provider.
type Option func(*Provider)

// WithProfile selects a shared config profile instead of the default chain.
func WithProfile(profile string) Option {
	return func(p *Provider) { p.profile = profile }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		configs:   make(map[string]aws.Config),
		clients:   make(map[string]*cloud.Clients),
		resolvers: make(map[string]*ParameterResolver),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config loads the SDK configuration for region.
func (p *Provider) Config(ctx context.Context, region string) (aws.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config(ctx, region)
}

func (p *Provider) config(ctx context.Context, region string) (aws.Config, error) {
	if cfg, ok := p.configs[region]; ok {
		return cfg, nil
	}

	var optFns []func(*config.LoadOptions) error
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	if p.profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(p.profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	p.configs[region] = cfg
	return cfg, nil
}

// Clients implements cloud.Factory.
func (p *Provider) Clients(ctx context.Context, region string) (*cloud.Clients, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[region]; ok {
		return c, nil
	}

	cfg, err := p.config(ctx, region)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(cfg)
	c := &cloud.Clients{
		Region:        region,
		Functions:     &functions{client: lambda.NewFromConfig(cfg)},
		Roles:         &roles{client: iam.NewFromConfig(cfg)},
		LogGroups:     &logGroups{client: cloudwatchlogs.NewFromConfig(cfg)},
		Buckets:       &buckets{client: s3Client, region: region},
		Objects:       &objects{client: s3Client},
		Distributions: &distributions{client: cloudfront.NewFromConfig(cfg)},
		DNS:           &dns{client: route53.NewFromConfig(cfg)},
		Certificates:  &certificates{client: acm.NewFromConfig(cfg)},
		Gateways:      &gateways{client: apigatewayv2.NewFromConfig(cfg)},
		Rules:         &rules{client: eventbridge.NewFromConfig(cfg)},
	}
	p.clients[region] = c
	return c, nil
}

func tagList[T any](tags map[string]string, mk func(k, v string) T) []T {
	out := make([]T, 0, len(tags))
	for k, v := range tags {
		out = append(out, mk(k, v))
	}
	return out
}
