package cloud

// Function lifecycle values reported by the provider.
const (
	FunctionStatePending = "Pending"
	FunctionStateActive  = "Active"
	FunctionStateFailed  = "Failed"

	UpdateStatusInProgress = "InProgress"
	UpdateStatusSuccessful = "Successful"
	UpdateStatusFailed     = "Failed"
)

// FunctionState is the observed state of a serverless function.
type FunctionState struct {
	Name                string
	ARN                 string
	Runtime             string
	Handler             string
	Role                string
	MemorySize          int32
	Timeout             int32
	Environment         map[string]string
	CodeSHA256          string
	ReservedConcurrency *int32
	State               string
	StateReason         string
	LastUpdateStatus    string
	LastUpdateReason    string
	Tags                map[string]string
}

// FunctionSpec is the full desired configuration of a function.
type FunctionSpec struct {
	Name        string
	Runtime     string
	Handler     string
	Role        string
	MemorySize  int32
	Timeout     int32
	Environment map[string]string
	Tags        map[string]string
}

// Permission grants a service principal the right to invoke a function.
type Permission struct {
	StatementID string
	Action      string
	Principal   string
	SourceARN   string
}

// RoleState is the observed state of an execution role.
type RoleState struct {
	Name string
	ARN  string
	Tags map[string]string
}

// RoleSpec describes a role to create.
type RoleSpec struct {
	Name             string
	AssumeRolePolicy string
	Tags             map[string]string
}

// LogGroupState is the observed state of a log group.
type LogGroupState struct {
	Name          string
	ARN           string
	RetentionDays *int32
	Tags          map[string]string
}

// BucketState is the observed state of a website bucket.
type BucketState struct {
	Name          string
	Region        string
	IndexDocument string
	Tags          map[string]string
}

// Object is one entry of a bucket listing. ETag has its quotes stripped.
type Object struct {
	Key  string
	Size int64
	ETag string
}

// ObjectListing is a bounded bucket listing.
type ObjectListing struct {
	Objects   []Object
	Truncated bool
}

// PutObjectInput describes an object upload. ContentMD5 is the base64
// digest of Body.
type PutObjectInput struct {
	Bucket       string
	Key          string
	Body         []byte
	ContentType  string
	ContentMD5   string
	CacheControl string
	PublicRead   bool
}

// Distribution status values.
const (
	DistributionInProgress = "InProgress"
	DistributionDeployed   = "Deployed"

	InvalidationInProgress = "InProgress"
	InvalidationCompleted  = "Completed"
)

// DistributionState is the observed state of a CDN distribution.
type DistributionState struct {
	ID             string
	ARN            string
	DomainName     string
	Status         string
	Enabled        bool
	Aliases        []string
	PriceClass     string
	CertificateARN string
	OriginDomain   string
	Tags           map[string]string
}

// DistributionSpec is the full desired configuration of a distribution.
type DistributionSpec struct {
	Alias          string
	OriginDomain   string
	CertificateARN string
	PriceClass     string
	IndexPage      string
	Tags           map[string]string
}

// DistributionListing is a bounded listing of distributions. Tags are not
// populated; use GetDistribution for the full state.
type DistributionListing struct {
	Distributions []DistributionState
	Truncated     bool
}

// HostedZone identifies a DNS zone. Name has no trailing dot.
type HostedZone struct {
	ID      string
	Name    string
	Private bool
}

// ZoneListing is a bounded hosted zone listing.
type ZoneListing struct {
	Zones     []HostedZone
	Truncated bool
}

// AliasTarget points a record at another provider-managed endpoint.
type AliasTarget struct {
	DNSName      string
	HostedZoneID string
}

// RecordState is a DNS record set. Names have no trailing dot.
type RecordState struct {
	Name   string
	Type   string
	TTL    int64
	Values []string
	Alias  *AliasTarget
}

// DNS change status values.
const (
	ChangePending = "PENDING"
	ChangeInSync  = "INSYNC"
)

// Certificate status values.
const (
	CertificateIssued            = "ISSUED"
	CertificatePendingValidation = "PENDING_VALIDATION"
	CertificateFailed            = "FAILED"
)

// CertificateSummary is one entry of a certificate listing.
type CertificateSummary struct {
	ARN        string
	DomainName string
	Status     string
}

// CertificateListing is a bounded certificate listing.
type CertificateListing struct {
	Certificates []CertificateSummary
	Truncated    bool
}

// ValidationRecord is the DNS record proving control of a domain.
type ValidationRecord struct {
	Name  string
	Type  string
	Value string
}

// CertificateState is the detailed state of a certificate.
type CertificateState struct {
	ARN                     string
	DomainName              string
	Status                  string
	FailureReason           string
	SubjectAlternativeNames []string
	Validation              []ValidationRecord
	Tags                    map[string]string
}

// CORS is the cross-origin configuration of an HTTP API.
type CORS struct {
	AllowOrigins  []string
	AllowHeaders  []string
	AllowMethods  []string
	ExposeHeaders []string
	MaxAge        int32
}

// APIState is the observed state of an HTTP API. Target is only populated
// by GetAPI.
type APIState struct {
	ID       string
	Name     string
	Endpoint string
	Target   string
	CORS     *CORS
	Tags     map[string]string
}

// APISpec is the full desired configuration of an HTTP API.
type APISpec struct {
	Name   string
	Target string
	CORS   CORS
	Tags   map[string]string
}

// APIListing is a bounded API listing.
type APIListing struct {
	APIs      []APIState
	Truncated bool
}

// DomainNameState is the observed state of a custom domain name.
type DomainNameState struct {
	DomainName       string
	TargetDomainName string
	HostedZoneID     string
	CertificateARN   string
	Tags             map[string]string
}

// APIMapping binds an API stage to a custom domain name.
type APIMapping struct {
	ID    string
	APIID string
	Stage string
}

// RuleState is the observed state of a trigger rule.
type RuleState struct {
	Name               string
	ARN                string
	ScheduleExpression string
	EventPattern       string
	Description        string
	Tags               map[string]string
}

// RuleSpec is the full desired configuration of a trigger rule.
type RuleSpec struct {
	Name               string
	ScheduleExpression string
	EventPattern       string
	Description        string
	Tags               map[string]string
}

// RuleListing is a bounded rule listing.
type RuleListing struct {
	Rules     []RuleState
	Truncated bool
}
