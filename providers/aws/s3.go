package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type buckets struct {
	client *s3.Client
	region string
}

func (b *buckets) GetBucket(ctx context.Context, name string) (*cloud.BucketState, error) {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}); err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("HeadBucket", err)
	}

	st := &cloud.BucketState{Name: name, Tags: map[string]string{}}

	loc, err := b.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		return nil, wrapErr("GetBucketLocation", err)
	}
	switch st.Region = string(loc.LocationConstraint); st.Region {
	case "":
		st.Region = "us-east-1"
	case "EU":
		st.Region = "eu-west-1"
	}

	site, err := b.client.GetBucketWebsite(ctx, &s3.GetBucketWebsiteInput{Bucket: aws.String(name)})
	switch {
	case hasCode(err, "NoSuchWebsiteConfiguration"):
	case err != nil:
		return nil, wrapErr("GetBucketWebsite", err)
	case site.IndexDocument != nil:
		st.IndexDocument = aws.ToString(site.IndexDocument.Suffix)
	}

	tagging, err := b.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	switch {
	case hasCode(err, "NoSuchTagSet"):
	case err != nil:
		return nil, wrapErr("GetBucketTagging", err)
	default:
		for _, t := range tagging.TagSet {
			st.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return st, nil
}

// CreateBucket creates a bucket whose objects may carry public-read ACLs.
func (b *buckets) CreateBucket(ctx context.Context, name, region string, tags map[string]string) error {
	in := &s3.CreateBucketInput{
		Bucket:          aws.String(name),
		ObjectOwnership: types.ObjectOwnershipBucketOwnerPreferred,
	}
	if region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, in); err != nil {
		return wrapErr("CreateBucket", err)
	}

	if _, err := b.client.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{Bucket: aws.String(name)}); err != nil {
		return wrapErr("DeletePublicAccessBlock", err)
	}

	_, err := b.client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket: aws.String(name),
		Tagging: &types.Tagging{TagSet: tagList(tags, func(k, v string) types.Tag {
			return types.Tag{Key: aws.String(k), Value: aws.String(v)}
		})},
	})
	return wrapErr("PutBucketTagging", err)
}

// BucketExists reports whether the name is taken by anyone, including other
// accounts.
func (b *buckets) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	switch {
	case err == nil:
		return true, nil
	case absent(err):
		return false, nil
	case httpStatus(err) == http.StatusForbidden:
		return true, nil
	}
	return false, wrapErr("HeadBucket", err)
}

func (b *buckets) PutBucketWebsite(ctx context.Context, name, indexDocument string) error {
	_, err := b.client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
		Bucket: aws.String(name),
		WebsiteConfiguration: &types.WebsiteConfiguration{
			IndexDocument: &types.IndexDocument{Suffix: aws.String(indexDocument)},
		},
	})
	return wrapErr("PutBucketWebsite", err)
}

type objects struct {
	client *s3.Client
}

// ListObjects lists up to limit keys in key order.
func (o *objects) ListObjects(ctx context.Context, bucket string, limit int) (*cloud.ObjectListing, error) {
	listing := &cloud.ObjectListing{}
	p := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("ListObjectsV2", err)
		}
		for _, obj := range page.Contents {
			if limit > 0 && len(listing.Objects) == limit {
				listing.Truncated = true
				return listing, nil
			}
			listing.Objects = append(listing.Objects, cloud.Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}
	return listing, nil
}

func (o *objects) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if hasCode(err, "NoSuchKey") {
			return nil, nil
		}
		return nil, wrapErr("GetObject", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (o *objects) PutObject(ctx context.Context, in cloud.PutObjectInput) error {
	put := &s3.PutObjectInput{
		Bucket:      aws.String(in.Bucket),
		Key:         aws.String(in.Key),
		Body:        bytes.NewReader(in.Body),
		ContentType: aws.String(in.ContentType),
	}
	if in.ContentMD5 != "" {
		put.ContentMD5 = aws.String(in.ContentMD5)
	}
	if in.CacheControl != "" {
		put.CacheControl = aws.String(in.CacheControl)
	}
	if in.PublicRead {
		put.ACL = types.ObjectCannedACLPublicRead
	}
	_, err := o.client.PutObject(ctx, put)
	return wrapErr("PutObject", err)
}

func (o *objects) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}
	out, err := o.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return wrapErr("DeleteObjects", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return cloud.Fatal("DeleteObjects", aws.ToString(e.Code),
			fmt.Sprintf("%d keys not deleted, first %s: %s", len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return nil
}

func hasCode(err error, code string) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == code
}

func httpStatus(err error) int {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
