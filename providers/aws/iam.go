package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type roles struct {
	client *iam.Client
}

func (r *roles) GetRole(ctx context.Context, name string) (*cloud.RoleState, error) {
	out, err := r.client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("GetRole", err)
	}
	return roleState(out.Role), nil
}

func roleState(role *types.Role) *cloud.RoleState {
	st := &cloud.RoleState{
		Name: aws.ToString(role.RoleName),
		ARN:  aws.ToString(role.Arn),
		Tags: make(map[string]string, len(role.Tags)),
	}
	for _, t := range role.Tags {
		st.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return st
}

func (r *roles) CreateRole(ctx context.Context, spec cloud.RoleSpec) (*cloud.RoleState, error) {
	out, err := r.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(spec.Name),
		AssumeRolePolicyDocument: aws.String(spec.AssumeRolePolicy),
		Tags: tagList(spec.Tags, func(k, v string) types.Tag {
			return types.Tag{Key: aws.String(k), Value: aws.String(v)}
		}),
	})
	if err != nil {
		return nil, wrapErr("CreateRole", err)
	}
	return roleState(out.Role), nil
}

func (r *roles) PutRolePolicy(ctx context.Context, role, policyName, document string) error {
	_, err := r.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(role),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(document),
	})
	// A role created moments ago may not be visible yet.
	if absent(err) {
		return cloud.Retryable("PutRolePolicy", "NoSuchEntity", err.Error())
	}
	return wrapErr("PutRolePolicy", err)
}
