package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type certificates struct {
	client *acm.Client
}

// ListCertificates lists issued and pending certificates.
func (c *certificates) ListCertificates(ctx context.Context) (*cloud.CertificateListing, error) {
	listing := &cloud.CertificateListing{}
	p := acm.NewListCertificatesPaginator(c.client, &acm.ListCertificatesInput{
		CertificateStatuses: []types.CertificateStatus{
			types.CertificateStatusIssued,
			types.CertificateStatusPendingValidation,
		},
	})
	for pages := 0; p.HasMorePages(); pages++ {
		if pages == maxListPages {
			listing.Truncated = true
			break
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("ListCertificates", err)
		}
		for _, s := range page.CertificateSummaryList {
			listing.Certificates = append(listing.Certificates, cloud.CertificateSummary{
				ARN:        aws.ToString(s.CertificateArn),
				DomainName: aws.ToString(s.DomainName),
				Status:     string(s.Status),
			})
		}
	}
	return listing, nil
}

func (c *certificates) DescribeCertificate(ctx context.Context, arn string) (*cloud.CertificateState, error) {
	out, err := c.client.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("DescribeCertificate", err)
	}

	cert := out.Certificate
	st := &cloud.CertificateState{
		ARN:                     aws.ToString(cert.CertificateArn),
		DomainName:              aws.ToString(cert.DomainName),
		Status:                  string(cert.Status),
		FailureReason:           string(cert.FailureReason),
		SubjectAlternativeNames: cert.SubjectAlternativeNames,
		Tags:                    map[string]string{},
	}
	for _, opt := range cert.DomainValidationOptions {
		if opt.ResourceRecord == nil {
			continue
		}
		st.Validation = append(st.Validation, cloud.ValidationRecord{
			Name:  strings.TrimSuffix(aws.ToString(opt.ResourceRecord.Name), "."),
			Type:  string(opt.ResourceRecord.Type),
			Value: strings.TrimSuffix(aws.ToString(opt.ResourceRecord.Value), "."),
		})
	}

	tags, err := c.client.ListTagsForCertificate(ctx, &acm.ListTagsForCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return nil, wrapErr("ListTagsForCertificate", err)
	}
	for _, t := range tags.Tags {
		st.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return st, nil
}

func (c *certificates) RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error) {
	out, err := c.client.RequestCertificate(ctx, &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: types.ValidationMethodDns,
		Tags: tagList(tags, func(k, v string) types.Tag {
			return types.Tag{Key: aws.String(k), Value: aws.String(v)}
		}),
	})
	if err != nil {
		return "", wrapErr("RequestCertificate", err)
	}
	return aws.ToString(out.CertificateArn), nil
}
