// Package cloud defines the Cloud API client consumed by the reconcilers.
//
// Lookups return (nil, nil) when the addressed resource does not exist.
// Every other failure is a *Error tagged not-found, retryable or fatal.
// Listing calls never page past a bound; they report Truncated instead and
// the caller decides whether a partial view is acceptable.
package cloud

import "context"

// Clients bundles the per-service clients for a single region.
type Clients struct {
	Region        string
	Functions     Functions
	Roles         Roles
	LogGroups     LogGroups
	Buckets       Buckets
	Objects       ObjectStore
	Distributions Distributions
	DNS           DNS
	Certificates  Certificates
	Gateways      Gateways
	Rules         Rules
}

// Factory hands out clients bound to a region.
type Factory interface {
	Clients(ctx context.Context, region string) (*Clients, error)
}

// Functions manages serverless functions and their invoke permissions.
type Functions interface {
	GetFunction(ctx context.Context, name string) (*FunctionState, error)
	CreateFunction(ctx context.Context, spec FunctionSpec, code []byte) (*FunctionState, error)
	UpdateFunctionConfiguration(ctx context.Context, spec FunctionSpec) error
	UpdateFunctionCode(ctx context.Context, name string, code []byte) error
	PutReservedConcurrency(ctx context.Context, name string, n int32) error
	DeleteReservedConcurrency(ctx context.Context, name string) error
	TagFunction(ctx context.Context, arn string, tags map[string]string) error
	// AddPermission is idempotent: an existing statement with the same ID is
	// left in place.
	AddPermission(ctx context.Context, function string, perm Permission) error
	RemovePermission(ctx context.Context, function, statementID string) error
	// GetPolicy returns the invoke permissions keyed by statement ID. A
	// function without a resource policy yields an empty map.
	GetPolicy(ctx context.Context, function string) (map[string]Permission, error)
}

// Roles manages execution roles.
type Roles interface {
	GetRole(ctx context.Context, name string) (*RoleState, error)
	CreateRole(ctx context.Context, spec RoleSpec) (*RoleState, error)
	PutRolePolicy(ctx context.Context, role, policyName, document string) error
}

// LogGroups manages function log groups.
type LogGroups interface {
	GetLogGroup(ctx context.Context, name string) (*LogGroupState, error)
	CreateLogGroup(ctx context.Context, name string, tags map[string]string) error
	PutRetentionPolicy(ctx context.Context, name string, days int32) error
}

// Buckets manages website buckets.
type Buckets interface {
	GetBucket(ctx context.Context, name string) (*BucketState, error)
	CreateBucket(ctx context.Context, name, region string, tags map[string]string) error
	BucketExists(ctx context.Context, name string) (bool, error)
	PutBucketWebsite(ctx context.Context, name, indexDocument string) error
}

// ObjectStore reads and writes bucket objects.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket string, limit int) (*ObjectListing, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, in PutObjectInput) error
	DeleteObjects(ctx context.Context, bucket string, keys []string) error
}

// Distributions manages CDN distributions and their invalidations.
type Distributions interface {
	ListDistributions(ctx context.Context) (*DistributionListing, error)
	GetDistribution(ctx context.Context, id string) (*DistributionState, error)
	CreateDistribution(ctx context.Context, spec DistributionSpec) (*DistributionState, error)
	UpdateDistribution(ctx context.Context, id string, spec DistributionSpec) error
	CreateInvalidation(ctx context.Context, distributionID string, paths []string) (string, error)
	GetInvalidationStatus(ctx context.Context, distributionID, invalidationID string) (string, error)
}

// DNS manages hosted zones and record sets.
type DNS interface {
	ListHostedZonesByName(ctx context.Context, name string) (*ZoneListing, error)
	FindRecord(ctx context.Context, zoneID, name, recordType string) (*RecordState, error)
	UpsertRecord(ctx context.Context, zoneID string, record RecordState) (string, error)
	GetChangeStatus(ctx context.Context, changeID string) (string, error)
}

// Certificates manages TLS certificates.
type Certificates interface {
	ListCertificates(ctx context.Context) (*CertificateListing, error)
	DescribeCertificate(ctx context.Context, arn string) (*CertificateState, error)
	RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error)
}

// Gateways manages HTTP APIs, custom domain names and API mappings.
type Gateways interface {
	ListAPIs(ctx context.Context) (*APIListing, error)
	// GetAPI returns the API with its integration target populated.
	GetAPI(ctx context.Context, id string) (*APIState, error)
	CreateAPI(ctx context.Context, spec APISpec) (*APIState, error)
	UpdateAPI(ctx context.Context, id string, spec APISpec) error
	GetDomainName(ctx context.Context, domain string) (*DomainNameState, error)
	CreateDomainName(ctx context.Context, domain, certificateARN string, tags map[string]string) (*DomainNameState, error)
	UpdateDomainName(ctx context.Context, domain, certificateARN string) error
	GetAPIMappings(ctx context.Context, domain string) ([]APIMapping, error)
	CreateAPIMapping(ctx context.Context, apiID, domain, stage string) error
}

// Rules manages scheduled and event trigger rules.
type Rules interface {
	ListRules(ctx context.Context, prefix string) (*RuleListing, error)
	PutRule(ctx context.Context, spec RuleSpec) (string, error)
	PutTarget(ctx context.Context, rule, targetID, targetARN string) error
	// ListTargets returns the target ARNs of a rule keyed by target ID.
	ListTargets(ctx context.Context, rule string) (map[string]string, error)
	RemoveTargets(ctx context.Context, rule string, targetIDs []string) error
	DeleteRule(ctx context.Context, name string) error
}
