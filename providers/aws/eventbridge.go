package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type rules struct {
	client *eventbridge.Client
}

// ListRules lists the rules on the default bus whose names start with prefix.
func (r *rules) ListRules(ctx context.Context, prefix string) (*cloud.RuleListing, error) {
	listing := &cloud.RuleListing{}
	in := &eventbridge.ListRulesInput{NamePrefix: aws.String(prefix), Limit: aws.Int32(100)}
	for pages := 0; ; pages++ {
		if pages == maxListPages {
			listing.Truncated = true
			return listing, nil
		}
		out, err := r.client.ListRules(ctx, in)
		if err != nil {
			return nil, wrapErr("ListRules", err)
		}
		for _, rule := range out.Rules {
			st := cloud.RuleState{
				Name:               aws.ToString(rule.Name),
				ARN:                aws.ToString(rule.Arn),
				ScheduleExpression: aws.ToString(rule.ScheduleExpression),
				EventPattern:       aws.ToString(rule.EventPattern),
				Description:        aws.ToString(rule.Description),
				Tags:               map[string]string{},
			}
			tags, err := r.client.ListTagsForResource(ctx, &eventbridge.ListTagsForResourceInput{ResourceARN: rule.Arn})
			if err != nil {
				return nil, wrapErr("ListTagsForResource", err)
			}
			for _, t := range tags.Tags {
				st.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
			listing.Rules = append(listing.Rules, st)
		}
		if aws.ToString(out.NextToken) == "" {
			return listing, nil
		}
		in.NextToken = out.NextToken
	}
}

func (r *rules) PutRule(ctx context.Context, spec cloud.RuleSpec) (string, error) {
	in := &eventbridge.PutRuleInput{
		Name:  aws.String(spec.Name),
		State: types.RuleStateEnabled,
		Tags: tagList(spec.Tags, func(k, v string) types.Tag {
			return types.Tag{Key: aws.String(k), Value: aws.String(v)}
		}),
	}
	if spec.ScheduleExpression != "" {
		in.ScheduleExpression = aws.String(spec.ScheduleExpression)
	}
	if spec.EventPattern != "" {
		in.EventPattern = aws.String(spec.EventPattern)
	}
	if spec.Description != "" {
		in.Description = aws.String(spec.Description)
	}
	out, err := r.client.PutRule(ctx, in)
	if err != nil {
		return "", wrapErr("PutRule", err)
	}
	return aws.ToString(out.RuleArn), nil
}

func (r *rules) PutTarget(ctx context.Context, rule, targetID, targetARN string) error {
	out, err := r.client.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule:    aws.String(rule),
		Targets: []types.Target{{Id: aws.String(targetID), Arn: aws.String(targetARN)}},
	})
	if err != nil {
		return wrapErr("PutTargets", err)
	}
	if out.FailedEntryCount > 0 && len(out.FailedEntries) > 0 {
		e := out.FailedEntries[0]
		return cloud.Fatal("PutTargets", aws.ToString(e.ErrorCode), fmt.Sprintf("target %s: %s", targetID, aws.ToString(e.ErrorMessage)))
	}
	return nil
}

func (r *rules) ListTargets(ctx context.Context, rule string) (map[string]string, error) {
	targets := map[string]string{}
	in := &eventbridge.ListTargetsByRuleInput{Rule: aws.String(rule), Limit: aws.Int32(100)}
	for pages := 0; pages < maxListPages; pages++ {
		out, err := r.client.ListTargetsByRule(ctx, in)
		if err != nil {
			return nil, wrapErr("ListTargetsByRule", err)
		}
		for _, t := range out.Targets {
			targets[aws.ToString(t.Id)] = aws.ToString(t.Arn)
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}
	return targets, nil
}

func (r *rules) RemoveTargets(ctx context.Context, rule string, targetIDs []string) error {
	out, err := r.client.RemoveTargets(ctx, &eventbridge.RemoveTargetsInput{
		Rule: aws.String(rule),
		Ids:  targetIDs,
	})
	if err != nil {
		return wrapErr("RemoveTargets", err)
	}
	if out.FailedEntryCount > 0 && len(out.FailedEntries) > 0 {
		e := out.FailedEntries[0]
		return cloud.Fatal("RemoveTargets", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
	}
	return nil
}

func (r *rules) DeleteRule(ctx context.Context, name string) error {
	_, err := r.client.DeleteRule(ctx, &eventbridge.DeleteRuleInput{Name: aws.String(name)})
	return wrapErr("DeleteRule", err)
}
