package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2/types"
	"github.com/picklr-io/shipyard/internal/cloud"
)

type gateways struct {
	client *apigatewayv2.Client
}

func (g *gateways) ListAPIs(ctx context.Context) (*cloud.APIListing, error) {
	listing := &cloud.APIListing{}
	in := &apigatewayv2.GetApisInput{MaxResults: aws.String(strconv.Itoa(100))}
	for pages := 0; ; pages++ {
		if pages == maxListPages {
			listing.Truncated = true
			return listing, nil
		}
		out, err := g.client.GetApis(ctx, in)
		if err != nil {
			return nil, wrapErr("GetApis", err)
		}
		for _, api := range out.Items {
			if api.ProtocolType != types.ProtocolTypeHttp {
				continue
			}
			listing.APIs = append(listing.APIs, apiState(api))
		}
		if aws.ToString(out.NextToken) == "" {
			return listing, nil
		}
		in.NextToken = out.NextToken
	}
}

func apiState(api types.Api) cloud.APIState {
	st := cloud.APIState{
		ID:       aws.ToString(api.ApiId),
		Name:     aws.ToString(api.Name),
		Endpoint: aws.ToString(api.ApiEndpoint),
		Tags:     api.Tags,
	}
	if c := api.CorsConfiguration; c != nil {
		st.CORS = &cloud.CORS{
			AllowOrigins:  c.AllowOrigins,
			AllowHeaders:  c.AllowHeaders,
			AllowMethods:  c.AllowMethods,
			ExposeHeaders: c.ExposeHeaders,
			MaxAge:        aws.ToInt32(c.MaxAge),
		}
	}
	return st
}

// GetAPI reads the API and resolves the target of its integration.
func (g *gateways) GetAPI(ctx context.Context, id string) (*cloud.APIState, error) {
	out, err := g.client.GetApi(ctx, &apigatewayv2.GetApiInput{ApiId: aws.String(id)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("GetApi", err)
	}
	st := apiState(types.Api{
		ApiId:             out.ApiId,
		Name:              out.Name,
		ApiEndpoint:       out.ApiEndpoint,
		CorsConfiguration: out.CorsConfiguration,
		Tags:              out.Tags,
	})

	integrations, err := g.client.GetIntegrations(ctx, &apigatewayv2.GetIntegrationsInput{ApiId: aws.String(id)})
	if err != nil {
		return nil, wrapErr("GetIntegrations", err)
	}
	for _, in := range integrations.Items {
		if in.IntegrationType == types.IntegrationTypeAwsProxy {
			st.Target = aws.ToString(in.IntegrationUri)
			break
		}
	}
	return &st, nil
}

func cors(c cloud.CORS) *types.Cors {
	return &types.Cors{
		AllowOrigins:  c.AllowOrigins,
		AllowHeaders:  c.AllowHeaders,
		AllowMethods:  c.AllowMethods,
		ExposeHeaders: c.ExposeHeaders,
		MaxAge:        aws.Int32(c.MaxAge),
	}
}

// CreateAPI quick-creates an HTTP API whose $default route and stage send
// every request to the target function.
func (g *gateways) CreateAPI(ctx context.Context, spec cloud.APISpec) (*cloud.APIState, error) {
	out, err := g.client.CreateApi(ctx, &apigatewayv2.CreateApiInput{
		Name:              aws.String(spec.Name),
		ProtocolType:      types.ProtocolTypeHttp,
		Target:            aws.String(spec.Target),
		CorsConfiguration: cors(spec.CORS),
		Tags:              spec.Tags,
	})
	if err != nil {
		return nil, wrapErr("CreateApi", err)
	}
	st := apiState(types.Api{
		ApiId:             out.ApiId,
		Name:              out.Name,
		ApiEndpoint:       out.ApiEndpoint,
		CorsConfiguration: out.CorsConfiguration,
		Tags:              out.Tags,
	})
	st.Target = spec.Target
	return &st, nil
}

func (g *gateways) UpdateAPI(ctx context.Context, id string, spec cloud.APISpec) error {
	_, err := g.client.UpdateApi(ctx, &apigatewayv2.UpdateApiInput{
		ApiId:             aws.String(id),
		Name:              aws.String(spec.Name),
		Target:            aws.String(spec.Target),
		CorsConfiguration: cors(spec.CORS),
	})
	return wrapErr("UpdateApi", err)
}

func (g *gateways) GetDomainName(ctx context.Context, domain string) (*cloud.DomainNameState, error) {
	out, err := g.client.GetDomainName(ctx, &apigatewayv2.GetDomainNameInput{DomainName: aws.String(domain)})
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, wrapErr("GetDomainName", err)
	}
	return domainNameState(aws.ToString(out.DomainName), out.DomainNameConfigurations, out.Tags), nil
}

func domainNameState(domain string, configs []types.DomainNameConfiguration, tags map[string]string) *cloud.DomainNameState {
	st := &cloud.DomainNameState{DomainName: domain, Tags: tags}
	if len(configs) > 0 {
		c := configs[0]
		st.TargetDomainName = aws.ToString(c.ApiGatewayDomainName)
		st.HostedZoneID = aws.ToString(c.HostedZoneId)
		st.CertificateARN = aws.ToString(c.CertificateArn)
	}
	return st
}

func domainConfig(certificateARN string) []types.DomainNameConfiguration {
	return []types.DomainNameConfiguration{{
		CertificateArn: aws.String(certificateARN),
		EndpointType:   types.EndpointTypeRegional,
		SecurityPolicy: types.SecurityPolicyTls12,
	}}
}

func (g *gateways) CreateDomainName(ctx context.Context, domain, certificateARN string, tags map[string]string) (*cloud.DomainNameState, error) {
	out, err := g.client.CreateDomainName(ctx, &apigatewayv2.CreateDomainNameInput{
		DomainName:               aws.String(domain),
		DomainNameConfigurations: domainConfig(certificateARN),
		Tags:                     tags,
	})
	if err != nil {
		return nil, wrapErr("CreateDomainName", err)
	}
	return domainNameState(aws.ToString(out.DomainName), out.DomainNameConfigurations, out.Tags), nil
}

func (g *gateways) UpdateDomainName(ctx context.Context, domain, certificateARN string) error {
	_, err := g.client.UpdateDomainName(ctx, &apigatewayv2.UpdateDomainNameInput{
		DomainName:               aws.String(domain),
		DomainNameConfigurations: domainConfig(certificateARN),
	})
	return wrapErr("UpdateDomainName", err)
}

func (g *gateways) GetAPIMappings(ctx context.Context, domain string) ([]cloud.APIMapping, error) {
	out, err := g.client.GetApiMappings(ctx, &apigatewayv2.GetApiMappingsInput{DomainName: aws.String(domain)})
	if err != nil {
		return nil, wrapErr("GetApiMappings", err)
	}
	mappings := make([]cloud.APIMapping, 0, len(out.Items))
	for _, m := range out.Items {
		mappings = append(mappings, cloud.APIMapping{
			ID:    aws.ToString(m.ApiMappingId),
			APIID: aws.ToString(m.ApiId),
			Stage: aws.ToString(m.Stage),
		})
	}
	return mappings, nil
}

func (g *gateways) CreateAPIMapping(ctx context.Context, apiID, domain, stage string) error {
	_, err := g.client.CreateApiMapping(ctx, &apigatewayv2.CreateApiMappingInput{
		ApiId:      aws.String(apiID),
		DomainName: aws.String(domain),
		Stage:      aws.String(stage),
	})
	return wrapErr("CreateApiMapping", err)
}
