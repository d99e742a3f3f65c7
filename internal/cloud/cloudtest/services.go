package cloudtest

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/picklr-io/shipyard/internal/cloud"
)

func copyFunction(fn *cloud.FunctionState) cloud.FunctionState {
	out := *fn
	out.Environment = maps.Clone(fn.Environment)
	out.Tags = maps.Clone(fn.Tags)
	if fn.ReservedConcurrency != nil {
		n := *fn.ReservedConcurrency
		out.ReservedConcurrency = &n
	}
	return out
}

func copyDistribution(d *cloud.DistributionState) cloud.DistributionState {
	out := *d
	out.Aliases = slices.Clone(d.Aliases)
	out.Tags = maps.Clone(d.Tags)
	return out
}

type functions struct {
	c      *Cloud
	region string
}

func (f *functions) GetFunction(_ context.Context, name string) (*cloud.FunctionState, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("GetFunction", name, false); err != nil {
		return nil, err
	}
	fn, ok := f.c.functions[name]
	if !ok {
		return nil, nil
	}
	out := copyFunction(fn)
	if fn.State == cloud.FunctionStatePending {
		fn.State = cloud.FunctionStateActive
	}
	if fn.LastUpdateStatus == cloud.UpdateStatusInProgress {
		fn.LastUpdateStatus = cloud.UpdateStatusSuccessful
	}
	return &out, nil
}

func (f *functions) CreateFunction(_ context.Context, spec cloud.FunctionSpec, code []byte) (*cloud.FunctionState, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("CreateFunction", spec.Name, true); err != nil {
		return nil, err
	}
	if _, ok := f.c.functions[spec.Name]; ok {
		return nil, cloud.Fatal("CreateFunction", "ResourceConflictException", "function already exist: "+spec.Name)
	}
	fn := &cloud.FunctionState{
		Name:             spec.Name,
		ARN:              functionARN(f.region, spec.Name),
		Runtime:          spec.Runtime,
		Handler:          spec.Handler,
		Role:             spec.Role,
		MemorySize:       spec.MemorySize,
		Timeout:          spec.Timeout,
		Environment:      maps.Clone(spec.Environment),
		CodeSHA256:       codeSHA256(code),
		State:            cloud.FunctionStatePending,
		LastUpdateStatus: cloud.UpdateStatusSuccessful,
		Tags:             cloneTags(spec.Tags),
	}
	f.c.functions[spec.Name] = fn
	out := copyFunction(fn)
	return &out, nil
}

func (f *functions) lookup(op, name string) (*cloud.FunctionState, error) {
	fn, ok := f.c.functions[name]
	if !ok {
		return nil, cloud.NotFound(op, "ResourceNotFoundException", "Function not found: "+name)
	}
	return fn, nil
}

func (f *functions) UpdateFunctionConfiguration(_ context.Context, spec cloud.FunctionSpec) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("UpdateFunctionConfiguration", spec.Name, true); err != nil {
		return err
	}
	fn, err := f.lookup("UpdateFunctionConfiguration", spec.Name)
	if err != nil {
		return err
	}
	fn.Runtime = spec.Runtime
	fn.Handler = spec.Handler
	fn.Role = spec.Role
	fn.MemorySize = spec.MemorySize
	fn.Timeout = spec.Timeout
	fn.Environment = maps.Clone(spec.Environment)
	fn.LastUpdateStatus = cloud.UpdateStatusInProgress
	return nil
}

func (f *functions) UpdateFunctionCode(_ context.Context, name string, code []byte) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("UpdateFunctionCode", name, true); err != nil {
		return err
	}
	fn, err := f.lookup("UpdateFunctionCode", name)
	if err != nil {
		return err
	}
	fn.CodeSHA256 = codeSHA256(code)
	fn.LastUpdateStatus = cloud.UpdateStatusInProgress
	return nil
}

func (f *functions) PutReservedConcurrency(_ context.Context, name string, n int32) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("PutReservedConcurrency", name, true); err != nil {
		return err
	}
	fn, err := f.lookup("PutReservedConcurrency", name)
	if err != nil {
		return err
	}
	fn.ReservedConcurrency = &n
	return nil
}

func (f *functions) DeleteReservedConcurrency(_ context.Context, name string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("DeleteReservedConcurrency", name, true); err != nil {
		return err
	}
	fn, err := f.lookup("DeleteReservedConcurrency", name)
	if err != nil {
		return err
	}
	fn.ReservedConcurrency = nil
	return nil
}

func (f *functions) TagFunction(_ context.Context, arn string, tags map[string]string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("TagFunction", arn, true); err != nil {
		return err
	}
	for _, fn := range f.c.functions {
		if fn.ARN == arn {
			if fn.Tags == nil {
				fn.Tags = make(map[string]string)
			}
			maps.Copy(fn.Tags, tags)
			return nil
		}
	}
	return cloud.NotFound("TagFunction", "ResourceNotFoundException", "Function not found: "+arn)
}

func (f *functions) AddPermission(_ context.Context, function string, perm cloud.Permission) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("AddPermission", function+"/"+perm.StatementID, true); err != nil {
		return err
	}
	if _, err := f.lookup("AddPermission", function); err != nil {
		return err
	}
	if f.c.permissions[function] == nil {
		f.c.permissions[function] = make(map[string]cloud.Permission)
	}
	if _, ok := f.c.permissions[function][perm.StatementID]; !ok {
		f.c.permissions[function][perm.StatementID] = perm
	}
	return nil
}

func (f *functions) RemovePermission(_ context.Context, function, statementID string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("RemovePermission", function+"/"+statementID, true); err != nil {
		return err
	}
	if _, ok := f.c.permissions[function][statementID]; !ok {
		return cloud.NotFound("RemovePermission", "ResourceNotFoundException", "statement not found: "+statementID)
	}
	delete(f.c.permissions[function], statementID)
	return nil
}

func (f *functions) GetPolicy(_ context.Context, function string) (map[string]cloud.Permission, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("GetPolicy", function, false); err != nil {
		return nil, err
	}
	if _, err := f.lookup("GetPolicy", function); err != nil {
		return nil, err
	}
	policy := maps.Clone(f.c.permissions[function])
	if policy == nil {
		policy = map[string]cloud.Permission{}
	}
	return policy, nil
}

type roles struct {
	c *Cloud
}

func (r *roles) GetRole(_ context.Context, name string) (*cloud.RoleState, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("GetRole", name, false); err != nil {
		return nil, err
	}
	role, ok := r.c.roles[name]
	if !ok {
		return nil, nil
	}
	out := *role
	out.Tags = maps.Clone(role.Tags)
	return &out, nil
}

func (r *roles) CreateRole(_ context.Context, spec cloud.RoleSpec) (*cloud.RoleState, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("CreateRole", spec.Name, true); err != nil {
		return nil, err
	}
	if _, ok := r.c.roles[spec.Name]; ok {
		return nil, cloud.Fatal("CreateRole", "EntityAlreadyExists", "Role with name "+spec.Name+" already exists.")
	}
	role := &cloud.RoleState{
		Name: spec.Name,
		ARN:  fmt.Sprintf("arn:aws:iam::%s:role/%s", AccountID, spec.Name),
		Tags: cloneTags(spec.Tags),
	}
	r.c.roles[spec.Name] = role
	out := *role
	return &out, nil
}

func (r *roles) PutRolePolicy(_ context.Context, role, policyName, document string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("PutRolePolicy", role+"/"+policyName, true); err != nil {
		return err
	}
	if _, ok := r.c.roles[role]; !ok {
		return cloud.NotFound("PutRolePolicy", "NoSuchEntity", "role not found: "+role)
	}
	if r.c.rolePolicies[role] == nil {
		r.c.rolePolicies[role] = make(map[string]string)
	}
	r.c.rolePolicies[role][policyName] = document
	return nil
}

type logGroups struct {
	c      *Cloud
	region string
}

func (l *logGroups) GetLogGroup(_ context.Context, name string) (*cloud.LogGroupState, error) {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if err := l.c.call("GetLogGroup", name, false); err != nil {
		return nil, err
	}
	lg, ok := l.c.logGroups[name]
	if !ok {
		return nil, nil
	}
	out := *lg
	out.Tags = maps.Clone(lg.Tags)
	return &out, nil
}

func (l *logGroups) CreateLogGroup(_ context.Context, name string, tags map[string]string) error {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if err := l.c.call("CreateLogGroup", name, true); err != nil {
		return err
	}
	if _, ok := l.c.logGroups[name]; ok {
		return cloud.Fatal("CreateLogGroup", "ResourceAlreadyExistsException", "The specified log group already exists")
	}
	l.c.logGroups[name] = &cloud.LogGroupState{
		Name: name,
		ARN:  fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s", l.region, AccountID, name),
		Tags: cloneTags(tags),
	}
	return nil
}

func (l *logGroups) PutRetentionPolicy(_ context.Context, name string, days int32) error {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if err := l.c.call("PutRetentionPolicy", name, true); err != nil {
		return err
	}
	lg, ok := l.c.logGroups[name]
	if !ok {
		return cloud.NotFound("PutRetentionPolicy", "ResourceNotFoundException", "The specified log group does not exist.")
	}
	lg.RetentionDays = &days
	return nil
}

type buckets struct {
	c      *Cloud
	region string
}

func (b *buckets) GetBucket(_ context.Context, name string) (*cloud.BucketState, error) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if err := b.c.call("GetBucket", name, false); err != nil {
		return nil, err
	}
	bucket, ok := b.c.buckets[name]
	if !ok {
		return nil, nil
	}
	out := *bucket
	out.Tags = maps.Clone(bucket.Tags)
	return &out, nil
}

func (b *buckets) CreateBucket(_ context.Context, name, region string, tags map[string]string) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if err := b.c.call("CreateBucket", name, true); err != nil {
		return err
	}
	if _, ok := b.c.buckets[name]; ok {
		return cloud.Fatal("CreateBucket", "BucketAlreadyOwnedByYou", "bucket already exists: "+name)
	}
	b.c.buckets[name] = &cloud.BucketState{Name: name, Region: region, Tags: cloneTags(tags)}
	b.c.objects[name] = make(map[string]*StoredObject)
	return nil
}

func (b *buckets) BucketExists(_ context.Context, name string) (bool, error) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if err := b.c.call("BucketExists", name, false); err != nil {
		return false, err
	}
	_, ok := b.c.buckets[name]
	return ok, nil
}

func (b *buckets) PutBucketWebsite(_ context.Context, name, indexDocument string) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if err := b.c.call("PutBucketWebsite", name, true); err != nil {
		return err
	}
	bucket, ok := b.c.buckets[name]
	if !ok {
		return cloud.NotFound("PutBucketWebsite", "NoSuchBucket", "The specified bucket does not exist")
	}
	bucket.IndexDocument = indexDocument
	return nil
}

type objectStore struct {
	c *Cloud
}

func (o *objectStore) ListObjects(_ context.Context, bucket string, limit int) (*cloud.ObjectListing, error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if err := o.c.call("ListObjects", bucket, false); err != nil {
		return nil, err
	}
	objs, ok := o.c.objects[bucket]
	if !ok {
		return nil, cloud.NotFound("ListObjects", "NoSuchBucket", "The specified bucket does not exist")
	}
	keys := slices.Collect(maps.Keys(objs))
	sort.Strings(keys)

	listing := &cloud.ObjectListing{Truncated: o.c.truncate["ListObjects"]}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		listing.Truncated = true
	}
	for _, k := range keys {
		listing.Objects = append(listing.Objects, cloud.Object{Key: k, Size: int64(len(objs[k].Body)), ETag: objs[k].ETag})
	}
	return listing, nil
}

func (o *objectStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if err := o.c.call("GetObject", bucket+"/"+key, false); err != nil {
		return nil, err
	}
	obj, ok := o.c.objects[bucket][key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(obj.Body), nil
}

func (o *objectStore) PutObject(_ context.Context, in cloud.PutObjectInput) error {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if err := o.c.call("PutObject", in.Bucket+"/"+in.Key, true); err != nil {
		return err
	}
	objs, ok := o.c.objects[in.Bucket]
	if !ok {
		return cloud.NotFound("PutObject", "NoSuchBucket", "The specified bucket does not exist")
	}
	if in.ContentMD5 != "" {
		sum := md5.Sum(in.Body)
		if base64.StdEncoding.EncodeToString(sum[:]) != in.ContentMD5 {
			return cloud.Fatal("PutObject", "BadDigest", "The Content-MD5 you specified did not match what we received.")
		}
	}
	objs[in.Key] = &StoredObject{
		Body:         slices.Clone(in.Body),
		ETag:         md5Hex(in.Body),
		ContentType:  in.ContentType,
		CacheControl: in.CacheControl,
	}
	return nil
}

// MaxDeleteKeys is the largest batch DeleteObjects accepts.
const MaxDeleteKeys = 1000

func (o *objectStore) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if err := o.c.call("DeleteObjects", fmt.Sprintf("%s (%d keys)", bucket, len(keys)), true); err != nil {
		return err
	}
	if len(keys) > MaxDeleteKeys {
		return cloud.Fatal("DeleteObjects", "MalformedXML", "too many keys in one request")
	}
	for _, k := range keys {
		delete(o.c.objects[bucket], k)
	}
	return nil
}

type distributions struct {
	c *Cloud
}

func (d *distributions) ListDistributions(_ context.Context) (*cloud.DistributionListing, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("ListDistributions", "", false); err != nil {
		return nil, err
	}
	ids := slices.Collect(maps.Keys(d.c.distributions))
	sort.Strings(ids)
	listing := &cloud.DistributionListing{Truncated: d.c.truncate["ListDistributions"]}
	for _, id := range ids {
		st := copyDistribution(d.c.distributions[id])
		st.Tags = nil
		listing.Distributions = append(listing.Distributions, st)
	}
	return listing, nil
}

func (d *distributions) GetDistribution(_ context.Context, id string) (*cloud.DistributionState, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("GetDistribution", id, false); err != nil {
		return nil, err
	}
	dist, ok := d.c.distributions[id]
	if !ok {
		return nil, nil
	}
	out := copyDistribution(dist)
	if dist.Status == cloud.DistributionInProgress {
		dist.Status = cloud.DistributionDeployed
	}
	return &out, nil
}

func (d *distributions) CreateDistribution(_ context.Context, spec cloud.DistributionSpec) (*cloud.DistributionState, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("CreateDistribution", spec.Alias, true); err != nil {
		return nil, err
	}
	for _, existing := range d.c.distributions {
		if slices.Contains(existing.Aliases, spec.Alias) {
			return nil, cloud.Fatal("CreateDistribution", "CNAMEAlreadyExists", "One or more of the CNAMEs you provided are already associated with a different resource.")
		}
	}
	id := d.c.nextID("E")
	dist := &cloud.DistributionState{
		ID:             id,
		ARN:            fmt.Sprintf("arn:aws:cloudfront::%s:distribution/%s", AccountID, id),
		DomainName:     strings.ToLower(id) + ".cloudfront.net",
		Status:         cloud.DistributionInProgress,
		Enabled:        true,
		Aliases:        []string{spec.Alias},
		PriceClass:     spec.PriceClass,
		CertificateARN: spec.CertificateARN,
		OriginDomain:   spec.OriginDomain,
		Tags:           cloneTags(spec.Tags),
	}
	d.c.distributions[id] = dist
	out := copyDistribution(dist)
	return &out, nil
}

func (d *distributions) UpdateDistribution(_ context.Context, id string, spec cloud.DistributionSpec) error {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("UpdateDistribution", id, true); err != nil {
		return err
	}
	dist, ok := d.c.distributions[id]
	if !ok {
		return cloud.NotFound("UpdateDistribution", "NoSuchDistribution", "The specified distribution does not exist.")
	}
	dist.Aliases = []string{spec.Alias}
	dist.PriceClass = spec.PriceClass
	dist.CertificateARN = spec.CertificateARN
	dist.OriginDomain = spec.OriginDomain
	dist.Status = cloud.DistributionInProgress
	return nil
}

func (d *distributions) CreateInvalidation(_ context.Context, distributionID string, paths []string) (string, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("CreateInvalidation", distributionID, true); err != nil {
		return "", err
	}
	if _, ok := d.c.distributions[distributionID]; !ok {
		return "", cloud.NotFound("CreateInvalidation", "NoSuchDistribution", "The specified distribution does not exist.")
	}
	d.c.invalidations[distributionID] = append(d.c.invalidations[distributionID], paths...)
	return d.c.nextID("I"), nil
}

func (d *distributions) GetInvalidationStatus(_ context.Context, distributionID, invalidationID string) (string, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("GetInvalidationStatus", invalidationID, false); err != nil {
		return "", err
	}
	return cloud.InvalidationCompleted, nil
}

type dns struct {
	c *Cloud
}

func (d *dns) ListHostedZonesByName(_ context.Context, name string) (*cloud.ZoneListing, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("ListHostedZonesByName", name, false); err != nil {
		return nil, err
	}
	zones := slices.Clone(d.c.zones)
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return &cloud.ZoneListing{Zones: zones, Truncated: d.c.truncate["ListHostedZonesByName"]}, nil
}

func (d *dns) FindRecord(_ context.Context, zoneID, name, recordType string) (*cloud.RecordState, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("FindRecord", name+" "+recordType, false); err != nil {
		return nil, err
	}
	records, ok := d.c.records[zoneID]
	if !ok {
		return nil, cloud.NotFound("FindRecord", "NoSuchHostedZone", "No hosted zone found with ID: "+zoneID)
	}
	r, ok := records[recordKey(strings.ToLower(strings.TrimSuffix(name, ".")), recordType)]
	if !ok {
		return nil, nil
	}
	r.Values = slices.Clone(r.Values)
	return &r, nil
}

func (d *dns) UpsertRecord(_ context.Context, zoneID string, record cloud.RecordState) (string, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("UpsertRecord", record.Name+" "+record.Type, true); err != nil {
		return "", err
	}
	records, ok := d.c.records[zoneID]
	if !ok {
		return "", cloud.NotFound("UpsertRecord", "NoSuchHostedZone", "No hosted zone found with ID: "+zoneID)
	}
	record.Name = strings.ToLower(strings.TrimSuffix(record.Name, "."))
	record.Values = slices.Clone(record.Values)
	records[recordKey(record.Name, record.Type)] = record
	id := d.c.nextID("C")
	d.c.changes[id] = cloud.ChangePending
	return id, nil
}

func (d *dns) GetChangeStatus(_ context.Context, changeID string) (string, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.call("GetChangeStatus", changeID, false); err != nil {
		return "", err
	}
	status, ok := d.c.changes[changeID]
	if !ok {
		return "", cloud.NotFound("GetChangeStatus", "NoSuchChange", "no change with ID "+changeID)
	}
	d.c.changes[changeID] = cloud.ChangeInSync
	return status, nil
}

// hasRecord reports whether any zone holds the record. The caller holds c.mu.
func (c *Cloud) hasRecord(name, recordType string) bool {
	key := recordKey(strings.ToLower(strings.TrimSuffix(name, ".")), recordType)
	for _, records := range c.records {
		if _, ok := records[key]; ok {
			return true
		}
	}
	return false
}

type certificates struct {
	c      *Cloud
	region string
}

func (a *certificates) ListCertificates(_ context.Context) (*cloud.CertificateListing, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if err := a.c.call("ListCertificates", a.region, false); err != nil {
		return nil, err
	}
	arns := slices.Collect(maps.Keys(a.c.certificates[a.region]))
	sort.Strings(arns)
	listing := &cloud.CertificateListing{Truncated: a.c.truncate["ListCertificates"]}
	for _, arn := range arns {
		cert := a.c.certificates[a.region][arn]
		if cert.Status != cloud.CertificateIssued && cert.Status != cloud.CertificatePendingValidation {
			continue
		}
		listing.Certificates = append(listing.Certificates, cloud.CertificateSummary{
			ARN:        cert.ARN,
			DomainName: cert.DomainName,
			Status:     cert.Status,
		})
	}
	return listing, nil
}

func (a *certificates) DescribeCertificate(_ context.Context, arn string) (*cloud.CertificateState, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if err := a.c.call("DescribeCertificate", arn, false); err != nil {
		return nil, err
	}
	cert, ok := a.c.certificates[a.region][arn]
	if !ok {
		return nil, nil
	}
	out := *cert
	out.SubjectAlternativeNames = slices.Clone(cert.SubjectAlternativeNames)
	out.Validation = slices.Clone(cert.Validation)
	out.Tags = maps.Clone(cert.Tags)

	// Validation records appear one poll after the request; issuance follows
	// one poll after the validation record exists.
	if pending, ok := a.c.validations[arn]; ok && cert.Validation == nil {
		cert.Validation = pending
		delete(a.c.validations, arn)
	} else if cert.Status == cloud.CertificatePendingValidation {
		validated := len(cert.Validation) > 0
		for _, v := range cert.Validation {
			validated = validated && a.c.hasRecord(v.Name, v.Type)
		}
		if validated {
			cert.Status = cloud.CertificateIssued
		}
	}
	return &out, nil
}

func (a *certificates) RequestCertificate(_ context.Context, domain string, tags map[string]string) (string, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if err := a.c.call("RequestCertificate", domain, true); err != nil {
		return "", err
	}
	id := a.c.nextID("cert-")
	arn := fmt.Sprintf("arn:aws:acm:%s:%s:certificate/%s", a.region, AccountID, id)
	if a.c.certificates[a.region] == nil {
		a.c.certificates[a.region] = make(map[string]*cloud.CertificateState)
	}
	a.c.certificates[a.region][arn] = &cloud.CertificateState{
		ARN:                     arn,
		DomainName:              domain,
		Status:                  cloud.CertificatePendingValidation,
		SubjectAlternativeNames: []string{domain},
		Tags:                    cloneTags(tags),
	}
	a.c.validations[arn] = []cloud.ValidationRecord{{
		Name:  "_" + id + "." + domain,
		Type:  "CNAME",
		Value: "_" + id + ".acm-validations.aws",
	}}
	return arn, nil
}

type gateways struct {
	c      *Cloud
	region string
}

func copyAPI(api *cloud.APIState) cloud.APIState {
	out := *api
	out.Tags = maps.Clone(api.Tags)
	if api.CORS != nil {
		cors := *api.CORS
		out.CORS = &cors
	}
	return out
}

func (g *gateways) ListAPIs(_ context.Context) (*cloud.APIListing, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("ListAPIs", "", false); err != nil {
		return nil, err
	}
	ids := slices.Collect(maps.Keys(g.c.apis))
	sort.Strings(ids)
	listing := &cloud.APIListing{Truncated: g.c.truncate["ListAPIs"]}
	for _, id := range ids {
		api := copyAPI(g.c.apis[id])
		api.Target = ""
		listing.APIs = append(listing.APIs, api)
	}
	return listing, nil
}

func (g *gateways) GetAPI(_ context.Context, id string) (*cloud.APIState, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("GetAPI", id, false); err != nil {
		return nil, err
	}
	api, ok := g.c.apis[id]
	if !ok {
		return nil, nil
	}
	out := copyAPI(api)
	return &out, nil
}

func (g *gateways) CreateAPI(_ context.Context, spec cloud.APISpec) (*cloud.APIState, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("CreateAPI", spec.Name, true); err != nil {
		return nil, err
	}
	id := g.c.nextID("api")
	cors := spec.CORS
	api := &cloud.APIState{
		ID:       id,
		Name:     spec.Name,
		Endpoint: fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com", id, g.region),
		Target:   spec.Target,
		CORS:     &cors,
		Tags:     cloneTags(spec.Tags),
	}
	g.c.apis[id] = api
	out := copyAPI(api)
	return &out, nil
}

func (g *gateways) UpdateAPI(_ context.Context, id string, spec cloud.APISpec) error {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("UpdateAPI", id, true); err != nil {
		return err
	}
	api, ok := g.c.apis[id]
	if !ok {
		return cloud.NotFound("UpdateAPI", "NotFoundException", "Invalid API identifier specified")
	}
	cors := spec.CORS
	api.Name = spec.Name
	api.Target = spec.Target
	api.CORS = &cors
	return nil
}

func (g *gateways) GetDomainName(_ context.Context, domain string) (*cloud.DomainNameState, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("GetDomainName", domain, false); err != nil {
		return nil, err
	}
	d, ok := g.c.domainNames[domain]
	if !ok {
		return nil, nil
	}
	out := *d
	out.Tags = maps.Clone(d.Tags)
	return &out, nil
}

func (g *gateways) CreateDomainName(_ context.Context, domain, certificateARN string, tags map[string]string) (*cloud.DomainNameState, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("CreateDomainName", domain, true); err != nil {
		return nil, err
	}
	if _, ok := g.c.domainNames[domain]; ok {
		return nil, cloud.Fatal("CreateDomainName", "ConflictException", "The domain name you provided already exists.")
	}
	d := &cloud.DomainNameState{
		DomainName:       domain,
		TargetDomainName: fmt.Sprintf("%s.execute-api.%s.amazonaws.com", strings.ToLower(g.c.nextID("d-")), g.region),
		HostedZoneID:     "Z1UJRXOUMOOFQ8",
		CertificateARN:   certificateARN,
		Tags:             cloneTags(tags),
	}
	g.c.domainNames[domain] = d
	out := *d
	return &out, nil
}

func (g *gateways) UpdateDomainName(_ context.Context, domain, certificateARN string) error {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("UpdateDomainName", domain, true); err != nil {
		return err
	}
	d, ok := g.c.domainNames[domain]
	if !ok {
		return cloud.NotFound("UpdateDomainName", "NotFoundException", "Invalid domain name identifier specified")
	}
	d.CertificateARN = certificateARN
	return nil
}

func (g *gateways) GetAPIMappings(_ context.Context, domain string) ([]cloud.APIMapping, error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("GetAPIMappings", domain, false); err != nil {
		return nil, err
	}
	if _, ok := g.c.domainNames[domain]; !ok {
		return nil, cloud.NotFound("GetAPIMappings", "NotFoundException", "Invalid domain name identifier specified")
	}
	return slices.Clone(g.c.mappings[domain]), nil
}

func (g *gateways) CreateAPIMapping(_ context.Context, apiID, domain, stage string) error {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if err := g.c.call("CreateAPIMapping", domain, true); err != nil {
		return err
	}
	if _, ok := g.c.domainNames[domain]; !ok {
		return cloud.NotFound("CreateAPIMapping", "NotFoundException", "Invalid domain name identifier specified")
	}
	g.c.mappings[domain] = append(g.c.mappings[domain], cloud.APIMapping{
		ID:    g.c.nextID("map"),
		APIID: apiID,
		Stage: stage,
	})
	return nil
}

type rules struct {
	c      *Cloud
	region string
}

func (r *rules) ListRules(_ context.Context, prefix string) (*cloud.RuleListing, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("ListRules", prefix, false); err != nil {
		return nil, err
	}
	names := slices.Collect(maps.Keys(r.c.rules))
	sort.Strings(names)
	listing := &cloud.RuleListing{Truncated: r.c.truncate["ListRules"]}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rule := *r.c.rules[name]
		rule.Tags = maps.Clone(rule.Tags)
		listing.Rules = append(listing.Rules, rule)
	}
	return listing, nil
}

// PutRule creates or updates a rule. Tags only apply on creation.
func (r *rules) PutRule(_ context.Context, spec cloud.RuleSpec) (string, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("PutRule", spec.Name, true); err != nil {
		return "", err
	}
	rule, ok := r.c.rules[spec.Name]
	if !ok {
		rule = &cloud.RuleState{
			Name: spec.Name,
			ARN:  fmt.Sprintf("arn:aws:events:%s:%s:rule/%s", r.region, AccountID, spec.Name),
			Tags: cloneTags(spec.Tags),
		}
		r.c.rules[spec.Name] = rule
	}
	rule.ScheduleExpression = spec.ScheduleExpression
	rule.EventPattern = spec.EventPattern
	rule.Description = spec.Description
	return rule.ARN, nil
}

func (r *rules) PutTarget(_ context.Context, rule, targetID, targetARN string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("PutTarget", rule+"/"+targetID, true); err != nil {
		return err
	}
	if _, ok := r.c.rules[rule]; !ok {
		return cloud.NotFound("PutTarget", "ResourceNotFoundException", "Rule "+rule+" does not exist.")
	}
	if r.c.ruleTargets[rule] == nil {
		r.c.ruleTargets[rule] = make(map[string]string)
	}
	r.c.ruleTargets[rule][targetID] = targetARN
	return nil
}

func (r *rules) ListTargets(_ context.Context, rule string) (map[string]string, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("ListTargets", rule, false); err != nil {
		return nil, err
	}
	if _, ok := r.c.rules[rule]; !ok {
		return nil, cloud.NotFound("ListTargets", "ResourceNotFoundException", "Rule "+rule+" does not exist.")
	}
	targets := maps.Clone(r.c.ruleTargets[rule])
	if targets == nil {
		targets = map[string]string{}
	}
	return targets, nil
}

func (r *rules) RemoveTargets(_ context.Context, rule string, targetIDs []string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("RemoveTargets", rule, true); err != nil {
		return err
	}
	if _, ok := r.c.rules[rule]; !ok {
		return cloud.NotFound("RemoveTargets", "ResourceNotFoundException", "Rule "+rule+" does not exist.")
	}
	for _, id := range targetIDs {
		delete(r.c.ruleTargets[rule], id)
	}
	return nil
}

func (r *rules) DeleteRule(_ context.Context, name string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("DeleteRule", name, true); err != nil {
		return err
	}
	if len(r.c.ruleTargets[name]) > 0 {
		return cloud.Fatal("DeleteRule", "ValidationException", "Rule can't be deleted since it has targets.")
	}
	delete(r.c.rules, name)
	delete(r.c.ruleTargets, name)
	return nil
}
