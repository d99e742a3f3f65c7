// Package cloudtest provides an in-memory Cloud API for tests.
//
// The fake keeps one account's resources in maps, records every call, and
// lets tests inject failures or truncate listings. Asynchronous operations
// settle on the first poll after they start, so waits exercise at least one
// sleep without slowing tests down.
package cloudtest

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/picklr-io/shipyard/internal/cloud"
)

// AccountID is the account every fake ARN belongs to.
const AccountID = "123456789012"

// Call is one recorded client call.
type Call struct {
	Method   string
	Subject  string
	Mutating bool
}

func (c Call) String() string {
	return c.Method + " " + c.Subject
}

type failure struct {
	err   error
	times int
}

// Cloud is an in-memory account. The zero value is not usable; call New.
type Cloud struct {
	mu sync.Mutex

	calls    []Call
	failures map[string]*failure
	truncate map[string]bool
	seq      int

	functions     map[string]*cloud.FunctionState
	permissions   map[string]map[string]cloud.Permission
	roles         map[string]*cloud.RoleState
	rolePolicies  map[string]map[string]string
	logGroups     map[string]*cloud.LogGroupState
	buckets       map[string]*cloud.BucketState
	objects       map[string]map[string]*StoredObject
	distributions map[string]*cloud.DistributionState
	invalidations map[string][]string
	zones         []cloud.HostedZone
	records       map[string]map[string]cloud.RecordState
	changes       map[string]string
	certificates  map[string]map[string]*cloud.CertificateState
	validations   map[string][]cloud.ValidationRecord
	apis          map[string]*cloud.APIState
	domainNames   map[string]*cloud.DomainNameState
	mappings      map[string][]cloud.APIMapping
	rules         map[string]*cloud.RuleState
	ruleTargets   map[string]map[string]string
}

// StoredObject is an object held by the fake object store.
type StoredObject struct {
	Body         []byte
	ETag         string
	ContentType  string
	CacheControl string
}

// New returns an empty account.
func New() *Cloud {
	return &Cloud{
		failures:      make(map[string]*failure),
		truncate:      make(map[string]bool),
		functions:     make(map[string]*cloud.FunctionState),
		permissions:   make(map[string]map[string]cloud.Permission),
		roles:         make(map[string]*cloud.RoleState),
		rolePolicies:  make(map[string]map[string]string),
		logGroups:     make(map[string]*cloud.LogGroupState),
		buckets:       make(map[string]*cloud.BucketState),
		objects:       make(map[string]map[string]*StoredObject),
		distributions: make(map[string]*cloud.DistributionState),
		invalidations: make(map[string][]string),
		records:       make(map[string]map[string]cloud.RecordState),
		changes:       make(map[string]string),
		certificates:  make(map[string]map[string]*cloud.CertificateState),
		validations:   make(map[string][]cloud.ValidationRecord),
		apis:          make(map[string]*cloud.APIState),
		domainNames:   make(map[string]*cloud.DomainNameState),
		mappings:      make(map[string][]cloud.APIMapping),
		rules:         make(map[string]*cloud.RuleState),
		ruleTargets:   make(map[string]map[string]string),
	}
}

// Clients implements cloud.Factory.
func (c *Cloud) Clients(_ context.Context, region string) (*cloud.Clients, error) {
	return &cloud.Clients{
		Region:        region,
		Functions:     &functions{c: c, region: region},
		Roles:         &roles{c: c},
		LogGroups:     &logGroups{c: c, region: region},
		Buckets:       &buckets{c: c, region: region},
		Objects:       &objectStore{c: c},
		Distributions: &distributions{c: c},
		DNS:           &dns{c: c},
		Certificates:  &certificates{c: c, region: region},
		Gateways:      &gateways{c: c, region: region},
		Rules:         &rules{c: c, region: region},
	}, nil
}

// Fail makes the next times calls of method return err.
func (c *Cloud) Fail(method string, err error, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[method] = &failure{err: err, times: times}
}

// Truncate makes every listing by method report a truncated result.
func (c *Cloud) Truncate(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.truncate[method] = true
}

// Calls returns every recorded call.
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Mutations returns the recorded mutating calls as "Method subject".
func (c *Cloud) Mutations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if call.Mutating {
			out = append(out, call.String())
		}
	}
	return out
}

// Called counts the recorded calls of method.
func (c *Cloud) Called(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (c *Cloud) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// call records a call and returns an injected failure, if any. The caller
// holds c.mu.
func (c *Cloud) call(method, subject string, mutating bool) error {
	c.calls = append(c.calls, Call{Method: method, Subject: subject, Mutating: mutating})
	f, ok := c.failures[method]
	if !ok || f.times == 0 {
		return nil
	}
	f.times--
	return f.err
}

func (c *Cloud) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s%06d", prefix, c.seq)
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

// Seeding helpers. They bypass call recording.

// PutFunction stores a function as if it already existed.
func (c *Cloud) PutFunction(fn cloud.FunctionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn.ARN == "" {
		fn.ARN = functionARN("us-east-1", fn.Name)
	}
	if fn.State == "" {
		fn.State = cloud.FunctionStateActive
	}
	if fn.LastUpdateStatus == "" {
		fn.LastUpdateStatus = cloud.UpdateStatusSuccessful
	}
	fn.Tags = cloneTags(fn.Tags)
	c.functions[fn.Name] = &fn
}

// Function returns a copy of the stored function.
func (c *Cloud) Function(name string) (cloud.FunctionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.functions[name]
	if !ok {
		return cloud.FunctionState{}, false
	}
	return copyFunction(fn), true
}

// Permissions returns the invoke permissions of a function.
func (c *Cloud) Permissions(function string) map[string]cloud.Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.permissions[function])
}

// PutRole stores a role as if it already existed.
func (c *Cloud) PutRole(role cloud.RoleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if role.ARN == "" {
		role.ARN = fmt.Sprintf("arn:aws:iam::%s:role/%s", AccountID, role.Name)
	}
	role.Tags = cloneTags(role.Tags)
	c.roles[role.Name] = &role
}

// RolePolicy returns an inline role policy document.
func (c *Cloud) RolePolicy(role, policy string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.rolePolicies[role][policy]
	return doc, ok
}

// LogGroup returns a copy of the stored log group.
func (c *Cloud) LogGroup(name string) (cloud.LogGroupState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lg, ok := c.logGroups[name]
	if !ok {
		return cloud.LogGroupState{}, false
	}
	return *lg, true
}

// PutBucket stores a bucket as if it already existed.
func (c *Cloud) PutBucket(b cloud.BucketState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.Tags = cloneTags(b.Tags)
	c.buckets[b.Name] = &b
	if c.objects[b.Name] == nil {
		c.objects[b.Name] = make(map[string]*StoredObject)
	}
}

// Bucket returns a copy of the stored bucket.
func (c *Cloud) Bucket(name string) (cloud.BucketState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[name]
	if !ok {
		return cloud.BucketState{}, false
	}
	return *b, true
}

// PutStoredObject stores an object, computing its ETag from body.
func (c *Cloud) PutStoredObject(bucket, key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[bucket] == nil {
		c.objects[bucket] = make(map[string]*StoredObject)
	}
	c.objects[bucket][key] = &StoredObject{Body: body, ETag: md5Hex(body)}
}

// Object returns a stored object.
func (c *Cloud) Object(bucket, key string) (StoredObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[bucket][key]
	if !ok {
		return StoredObject{}, false
	}
	return *o, true
}

// ObjectKeys returns the sorted keys of a bucket.
func (c *Cloud) ObjectKeys(bucket string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := slices.Collect(maps.Keys(c.objects[bucket]))
	sort.Strings(keys)
	return keys
}

// PutDistribution stores a distribution as if it already existed and
// returns its ID.
func (c *Cloud) PutDistribution(d cloud.DistributionState) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.ID == "" {
		d.ID = c.nextID("E")
	}
	if d.ARN == "" {
		d.ARN = fmt.Sprintf("arn:aws:cloudfront::%s:distribution/%s", AccountID, d.ID)
	}
	if d.DomainName == "" {
		d.DomainName = strings.ToLower(d.ID) + ".cloudfront.net"
	}
	if d.Status == "" {
		d.Status = cloud.DistributionDeployed
	}
	d.Tags = cloneTags(d.Tags)
	c.distributions[d.ID] = &d
	return d.ID
}

// Distribution returns a copy of the stored distribution.
func (c *Cloud) Distribution(id string) (cloud.DistributionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.distributions[id]
	if !ok {
		return cloud.DistributionState{}, false
	}
	return copyDistribution(d), true
}

// Invalidations returns the paths of every invalidation of a distribution.
func (c *Cloud) Invalidations(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.invalidations[id])
}

// AddZone creates a public hosted zone and returns it.
func (c *Cloud) AddZone(name string) cloud.HostedZone {
	c.mu.Lock()
	defer c.mu.Unlock()
	z := cloud.HostedZone{ID: c.nextID("Z"), Name: strings.TrimSuffix(strings.ToLower(name), ".")}
	c.zones = append(c.zones, z)
	c.records[z.ID] = make(map[string]cloud.RecordState)
	return z
}

// PutRecord stores a record set in a zone.
func (c *Cloud) PutRecord(zoneID string, r cloud.RecordState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.Name = strings.TrimSuffix(strings.ToLower(r.Name), ".")
	c.records[zoneID][recordKey(r.Name, r.Type)] = r
}

// Record returns a stored record set.
func (c *Cloud) Record(zoneID, name, recordType string) (cloud.RecordState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[zoneID][recordKey(strings.ToLower(name), recordType)]
	return r, ok
}

// PutCertificate stores a certificate in region and returns its ARN.
func (c *Cloud) PutCertificate(region string, cert cloud.CertificateState) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cert.ARN == "" {
		cert.ARN = fmt.Sprintf("arn:aws:acm:%s:%s:certificate/%s", region, AccountID, c.nextID("cert-"))
	}
	if len(cert.SubjectAlternativeNames) == 0 {
		cert.SubjectAlternativeNames = []string{cert.DomainName}
	}
	cert.Tags = cloneTags(cert.Tags)
	if c.certificates[region] == nil {
		c.certificates[region] = make(map[string]*cloud.CertificateState)
	}
	c.certificates[region][cert.ARN] = &cert
	return cert.ARN
}

// Certificate returns a copy of a stored certificate.
func (c *Cloud) Certificate(region, arn string) (cloud.CertificateState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cert, ok := c.certificates[region][arn]
	if !ok {
		return cloud.CertificateState{}, false
	}
	return *cert, true
}

// CertificateARNs lists the certificates of a region.
func (c *Cloud) CertificateARNs(region string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	arns := slices.Collect(maps.Keys(c.certificates[region]))
	sort.Strings(arns)
	return arns
}

// PutAPI stores an HTTP API and returns its ID.
func (c *Cloud) PutAPI(api cloud.APIState) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if api.ID == "" {
		api.ID = c.nextID("api")
	}
	api.Tags = cloneTags(api.Tags)
	c.apis[api.ID] = &api
	return api.ID
}

// API returns a copy of a stored API.
func (c *Cloud) API(id string) (cloud.APIState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	api, ok := c.apis[id]
	if !ok {
		return cloud.APIState{}, false
	}
	return *api, true
}

// DomainName returns a stored custom domain name.
func (c *Cloud) DomainName(domain string) (cloud.DomainNameState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.domainNames[domain]
	if !ok {
		return cloud.DomainNameState{}, false
	}
	return *d, true
}

// Mappings returns the API mappings of a custom domain name.
func (c *Cloud) Mappings(domain string) []cloud.APIMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.mappings[domain])
}

// PutRuleState stores a rule as if it already existed.
func (c *Cloud) PutRuleState(r cloud.RuleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.ARN == "" {
		r.ARN = fmt.Sprintf("arn:aws:events:us-east-1:%s:rule/%s", AccountID, r.Name)
	}
	r.Tags = cloneTags(r.Tags)
	c.rules[r.Name] = &r
}

// Rule returns a copy of a stored rule.
func (c *Cloud) Rule(name string) (cloud.RuleState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[name]
	if !ok {
		return cloud.RuleState{}, false
	}
	return *r, true
}

// RuleNames lists the stored rules.
func (c *Cloud) RuleNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := slices.Collect(maps.Keys(c.rules))
	sort.Strings(names)
	return names
}

// RuleTargets returns the targets of a rule keyed by target ID.
func (c *Cloud) RuleTargets(name string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.ruleTargets[name])
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func codeSHA256(code []byte) string {
	sum := sha256.Sum256(code)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func functionARN(region, name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, AccountID, name)
}

func recordKey(name, recordType string) string {
	return name + "|" + recordType
}
