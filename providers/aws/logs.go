package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type logGroups struct {
	client *cloudwatchlogs.Client
}

// GetLogGroup finds the group by exact name. DescribeLogGroups only filters
// by prefix, so a single page of prefix matches is scanned.
func (l *logGroups) GetLogGroup(ctx context.Context, name string) (*cloud.LogGroupState, error) {
	out, err := l.client.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
		Limit:              aws.Int32(50),
	})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("DescribeLogGroups", err)
	}

	for _, g := range out.LogGroups {
		if aws.ToString(g.LogGroupName) != name {
			continue
		}
		st := &cloud.LogGroupState{
			Name:          name,
			ARN:           strings.TrimSuffix(aws.ToString(g.Arn), ":*"),
			RetentionDays: g.RetentionInDays,
		}
		tags, err := l.client.ListTagsForResource(ctx, &cloudwatchlogs.ListTagsForResourceInput{
			ResourceArn: aws.String(st.ARN),
		})
		if err != nil {
			return nil, wrapErr("ListTagsForResource", err)
		}
		st.Tags = tags.Tags
		return st, nil
	}
	return nil, nil
}

func (l *logGroups) CreateLogGroup(ctx context.Context, name string, tags map[string]string) error {
	_, err := l.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
		Tags:         tags,
	})
	return wrapErr("CreateLogGroup", err)
}

func (l *logGroups) PutRetentionPolicy(ctx context.Context, name string, days int32) error {
	_, err := l.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(name),
		RetentionInDays: aws.Int32(days),
	})
	return wrapErr("PutRetentionPolicy", err)
}
