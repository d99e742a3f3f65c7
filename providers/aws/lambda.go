package aws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type functions struct {
	client *lambda.Client
}

func (f *functions) GetFunction(ctx context.Context, name string) (*cloud.FunctionState, error) {
	out, err := f.client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("GetFunction", err)
	}

	st := functionState(out.Configuration)
	st.Tags = out.Tags
	if out.Concurrency != nil && out.Concurrency.ReservedConcurrentExecutions != nil {
		n := *out.Concurrency.ReservedConcurrentExecutions
		st.ReservedConcurrency = &n
	}
	return st, nil
}

func functionState(c *types.FunctionConfiguration) *cloud.FunctionState {
	if c == nil {
		return &cloud.FunctionState{}
	}
	st := &cloud.FunctionState{
		Name:             aws.ToString(c.FunctionName),
		ARN:              aws.ToString(c.FunctionArn),
		Runtime:          string(c.Runtime),
		Handler:          aws.ToString(c.Handler),
		Role:             aws.ToString(c.Role),
		MemorySize:       aws.ToInt32(c.MemorySize),
		Timeout:          aws.ToInt32(c.Timeout),
		CodeSHA256:       aws.ToString(c.CodeSha256),
		State:            string(c.State),
		StateReason:      aws.ToString(c.StateReason),
		LastUpdateStatus: string(c.LastUpdateStatus),
		LastUpdateReason: aws.ToString(c.LastUpdateStatusReason),
	}
	if c.Environment != nil {
		st.Environment = c.Environment.Variables
	}
	return st
}

func (f *functions) CreateFunction(ctx context.Context, spec cloud.FunctionSpec, code []byte) (*cloud.FunctionState, error) {
	out, err := f.client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(spec.Name),
		Runtime:      types.Runtime(spec.Runtime),
		Handler:      aws.String(spec.Handler),
		Role:         aws.String(spec.Role),
		MemorySize:   aws.Int32(spec.MemorySize),
		Timeout:      aws.Int32(spec.Timeout),
		Environment:  &types.Environment{Variables: spec.Environment},
		Code:         &types.FunctionCode{ZipFile: code},
		Tags:         spec.Tags,
	})
	if err != nil {
		return nil, wrapErr("CreateFunction", err)
	}
	return &cloud.FunctionState{
		Name:             aws.ToString(out.FunctionName),
		ARN:              aws.ToString(out.FunctionArn),
		Runtime:          string(out.Runtime),
		Handler:          aws.ToString(out.Handler),
		Role:             aws.ToString(out.Role),
		MemorySize:       aws.ToInt32(out.MemorySize),
		Timeout:          aws.ToInt32(out.Timeout),
		Environment:      spec.Environment,
		CodeSHA256:       aws.ToString(out.CodeSha256),
		State:            string(out.State),
		StateReason:      aws.ToString(out.StateReason),
		LastUpdateStatus: string(out.LastUpdateStatus),
		Tags:             spec.Tags,
	}, nil
}

func (f *functions) UpdateFunctionConfiguration(ctx context.Context, spec cloud.FunctionSpec) error {
	_, err := f.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(spec.Name),
		Runtime:      types.Runtime(spec.Runtime),
		Handler:      aws.String(spec.Handler),
		Role:         aws.String(spec.Role),
		MemorySize:   aws.Int32(spec.MemorySize),
		Timeout:      aws.Int32(spec.Timeout),
		// An empty map clears variables set out of band.
		Environment: &types.Environment{Variables: nonNil(spec.Environment)},
	})
	return wrapErr("UpdateFunctionConfiguration", err)
}

func (f *functions) UpdateFunctionCode(ctx context.Context, name string, code []byte) error {
	_, err := f.client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		ZipFile:      code,
	})
	return wrapErr("UpdateFunctionCode", err)
}

func (f *functions) PutReservedConcurrency(ctx context.Context, name string, n int32) error {
	_, err := f.client.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
		FunctionName:                 aws.String(name),
		ReservedConcurrentExecutions: aws.Int32(n),
	})
	return wrapErr("PutFunctionConcurrency", err)
}

func (f *functions) DeleteReservedConcurrency(ctx context.Context, name string) error {
	_, err := f.client.DeleteFunctionConcurrency(ctx, &lambda.DeleteFunctionConcurrencyInput{
		FunctionName: aws.String(name),
	})
	return wrapErr("DeleteFunctionConcurrency", err)
}

func (f *functions) TagFunction(ctx context.Context, arn string, tags map[string]string) error {
	_, err := f.client.TagResource(ctx, &lambda.TagResourceInput{
		Resource: aws.String(arn),
		Tags:     tags,
	})
	return wrapErr("TagResource", err)
}

func (f *functions) AddPermission(ctx context.Context, function string, perm cloud.Permission) error {
	in := &lambda.AddPermissionInput{
		FunctionName: aws.String(function),
		StatementId:  aws.String(perm.StatementID),
		Action:       aws.String(perm.Action),
		Principal:    aws.String(perm.Principal),
	}
	if perm.SourceARN != "" {
		in.SourceArn = aws.String(perm.SourceARN)
	}
	_, err := f.client.AddPermission(ctx, in)
	if statementExists(err) {
		return nil
	}
	return wrapErr("AddPermission", err)
}

func statementExists(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.ErrorCode() == "ResourceConflictException" && strings.Contains(ae.ErrorMessage(), "already exists")
}

func (f *functions) RemovePermission(ctx context.Context, function, statementID string) error {
	_, err := f.client.RemovePermission(ctx, &lambda.RemovePermissionInput{
		FunctionName: aws.String(function),
		StatementId:  aws.String(statementID),
	})
	return wrapErr("RemovePermission", err)
}

type policyDocument struct {
	Statement []struct {
		Sid       string
		Action    any
		Principal any
		Condition map[string]map[string]any
	}
}

// GetPolicy reads the resource policy of a function. Lambda answers
// ResourceNotFoundException both for a missing function and for a function
// without a policy; both read as an empty policy.
func (f *functions) GetPolicy(ctx context.Context, function string) (map[string]cloud.Permission, error) {
	out, err := f.client.GetPolicy(ctx, &lambda.GetPolicyInput{FunctionName: aws.String(function)})
	if absent(err) {
		return map[string]cloud.Permission{}, nil
	}
	if err != nil {
		return nil, wrapErr("GetPolicy", err)
	}
	return parsePolicy(aws.ToString(out.Policy))
}

func parsePolicy(document string) (map[string]cloud.Permission, error) {
	var doc policyDocument
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return nil, cloud.Fatal("GetPolicy", "MalformedPolicy", err.Error())
	}
	policy := make(map[string]cloud.Permission, len(doc.Statement))
	for _, st := range doc.Statement {
		perm := cloud.Permission{StatementID: st.Sid}
		if action, ok := st.Action.(string); ok {
			perm.Action = action
		}
		switch p := st.Principal.(type) {
		case string:
			perm.Principal = p
		case map[string]any:
			if svc, ok := p["Service"].(string); ok {
				perm.Principal = svc
			}
		}
		if arn, ok := st.Condition["ArnLike"]["AWS:SourceArn"].(string); ok {
			perm.SourceARN = arn
		}
		policy[st.Sid] = perm
	}
	return policy, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
