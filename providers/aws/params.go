package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Reference prefixes understood by ParameterResolver.
const (
	SSMPrefix            = "ssm:"
	SecretsManagerPrefix = "secretsmanager:"
)

// ParameterResolver reads configuration values kept in Parameter Store or
// Secrets Manager.
type ParameterResolver struct {
	ssm     *ssm.Client
	secrets *secretsmanager.Client
}

// Resolver returns a ParameterResolver bound to region.
func (p *Provider) Resolver(ctx context.Context, region string) (*ParameterResolver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.resolvers[region]; ok {
		return r, nil
	}

	cfg, err := p.config(ctx, region)
	if err != nil {
		return nil, err
	}
	r := &ParameterResolver{
		ssm:     ssm.NewFromConfig(cfg),
		secrets: secretsmanager.NewFromConfig(cfg),
	}
	p.resolvers[region] = r
	return r, nil
}

// Resolve reads ref from the parameter stores of region.
func (p *Provider) Resolve(ctx context.Context, region, ref string) (string, error) {
	r, err := p.Resolver(ctx, region)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, ref)
}

// Resolve looks up ref. "ssm:/path/name" reads a (decrypted) parameter,
// "secretsmanager:id" reads a secret string and "secretsmanager:id#key"
// reads one key of a JSON secret.
func (r *ParameterResolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, SSMPrefix):
		name := strings.TrimPrefix(ref, SSMPrefix)
		out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return "", wrapErr("GetParameter", err)
		}
		return aws.ToString(out.Parameter.Value), nil

	case strings.HasPrefix(ref, SecretsManagerPrefix):
		id, key, _ := strings.Cut(strings.TrimPrefix(ref, SecretsManagerPrefix), "#")
		out, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
		if err != nil {
			return "", wrapErr("GetSecretValue", err)
		}
		value := aws.ToString(out.SecretString)
		if key == "" {
			return value, nil
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
		}
		v, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("secret %s has no key %q", id, key)
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return ref, nil
}
