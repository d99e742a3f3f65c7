package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// Gateway invoke permission.
const (
	GatewayStatementID = "allow_api_gateway"
	gatewayPrincipal   = "apigateway.amazonaws.com"
	defaultStage       = "$default"
)

// DefaultCORS is the cross-origin policy of every HTTP API.
func DefaultCORS() cloud.CORS {
	return cloud.CORS{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{"content-type"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		ExposeHeaders: []string{"*"},
		MaxAge:        3600,
	}
}

// Gateway exposes a function on Domain through an HTTP API, a custom
// domain name and a default-stage mapping.
type Gateway struct {
	Managed
	Domain           string
	Region           string
	FunctionStage    string
	CertificateStage string
	Stage            string
}

func (g *Gateway) Kind() string { return KindGateway }

func (g *Gateway) Reconcile(ctx context.Context, run *engine.Run) (*engine.Result, error) {
	domain := engine.CanonicalDomain(g.Domain)
	log := logger(run, KindGateway, domain)

	fn, err := dependency(run, g.Stage, g.FunctionStage)
	if err != nil {
		return nil, err
	}
	cert, err := dependency(run, g.Stage, g.CertificateStage)
	if err != nil {
		return nil, err
	}
	c, err := run.Clients(ctx, g.Region)
	if err != nil {
		return nil, err
	}
	own := g.owner(run)

	spec := cloud.APISpec{Name: domain, Target: fn.RemoteID, CORS: DefaultCORS(), Tags: own.Tags()}
	api, o, err := g.ensureAPI(ctx, run, c, spec, fn.Output(OutputName))
	if err != nil {
		return nil, err
	}
	res := &engine.Result{Outcome: o, RemoteID: api.ID}

	dn, o, err := g.ensureDomainName(ctx, run, c.Gateways, domain, cert.RemoteID)
	if err != nil {
		return nil, err
	}
	res.Merge(o)

	mappings, err := c.Gateways.GetAPIMappings(ctx, domain)
	if err != nil {
		return nil, providerErr("get API mappings", domain, err)
	}
	if !slices.ContainsFunc(mappings, func(m cloud.APIMapping) bool { return m.APIID == api.ID && m.Stage == defaultStage }) {
		if err := c.Gateways.CreateAPIMapping(ctx, api.ID, domain, defaultStage); err != nil {
			return nil, providerErr("create API mapping", domain, err)
		}
		log.Info("API mapping created", "api_id", api.ID)
		res.Merge(engine.Updated)
	}

	res.Outputs = map[string]string{
		OutputEndpoint:     api.Endpoint,
		OutputTargetDomain: dn.TargetDomainName,
		OutputTargetZoneID: dn.HostedZoneID,
	}
	log.Info("gateway reconciled", "outcome", res.Outcome, "api_id", api.ID)
	return res, nil
}

func (g *Gateway) ensureAPI(ctx context.Context, run *engine.Run, c *cloud.Clients, spec cloud.APISpec, function string) (*cloud.APIState, engine.Outcome, error) {
	listing, err := c.Gateways.ListAPIs(ctx)
	if err != nil {
		return nil, "", providerErr("list APIs", spec.Name, err)
	}
	if listing.Truncated {
		return nil, "", engine.ListingOverflowError("GetApis", len(listing.APIs)).WithResource(spec.Name)
	}
	var found *cloud.APIState
	for i := range listing.APIs {
		if listing.APIs[i].Name == spec.Name {
			found = &listing.APIs[i]
			break
		}
	}

	if found == nil {
		api, err := c.Gateways.CreateAPI(ctx, spec)
		if err != nil {
			return nil, "", providerErr("create API", spec.Name, err)
		}
		perm, err := invokePermission(c.Region, spec.Target, api.ID)
		if err != nil {
			return nil, "", err
		}
		if _, err := cloud.EnsurePermission(ctx, c.Functions, function, perm); err != nil {
			return nil, "", providerErr("allow API to invoke function", function, err)
		}
		logger(run, KindGateway, spec.Name).Info("API created", "api_id", api.ID)
		return api, engine.Created, nil
	}

	if err := g.owner(run).Check("HTTP API", found.ID, found.Tags); err != nil {
		return nil, "", err
	}
	current, err := c.Gateways.GetAPI(ctx, found.ID)
	if err != nil {
		return nil, "", providerErr("get API", found.ID, err)
	}
	if current == nil {
		return nil, "", engine.ProviderError("get API", fmt.Errorf("API %s disappeared", found.ID)).WithResource(spec.Name)
	}
	outcome := engine.Unchanged
	if current.Target != spec.Target || !corsEqual(current.CORS, spec.CORS) {
		if err := c.Gateways.UpdateAPI(ctx, current.ID, spec); err != nil {
			return nil, "", providerErr("update API", current.ID, err)
		}
		logger(run, KindGateway, spec.Name).Info("API updated", "api_id", current.ID)
		outcome = engine.Updated
	}

	perm, err := invokePermission(c.Region, spec.Target, current.ID)
	if err != nil {
		return nil, "", err
	}
	granted, err := cloud.EnsurePermission(ctx, c.Functions, function, perm)
	if err != nil {
		return nil, "", providerErr("allow API to invoke function", function, err)
	}
	if granted {
		logger(run, KindGateway, spec.Name).Info("API invoke permission restored", "api_id", current.ID)
		outcome = engine.Updated
	}
	return current, outcome, nil
}

func (g *Gateway) ensureDomainName(ctx context.Context, run *engine.Run, gw cloud.Gateways, domain, certARN string) (*cloud.DomainNameState, engine.Outcome, error) {
	dn, err := gw.GetDomainName(ctx, domain)
	if err != nil {
		return nil, "", providerErr("get API domain name", domain, err)
	}
	if dn == nil {
		dn, err = gw.CreateDomainName(ctx, domain, certARN, g.owner(run).Tags())
		if err != nil {
			return nil, "", providerErr("create API domain name", domain, err)
		}
		logger(run, KindGateway, domain).Info("API domain name created")
		return dn, engine.Created, nil
	}
	if err := g.owner(run).Check("API domain name", domain, dn.Tags); err != nil {
		return nil, "", err
	}
	if dn.CertificateARN == certARN {
		return dn, engine.Unchanged, nil
	}
	if err := gw.UpdateDomainName(ctx, domain, certARN); err != nil {
		return nil, "", providerErr("update API domain name", domain, err)
	}
	return dn, engine.Updated, nil
}

func invokePermission(region, functionARN, apiID string) (cloud.Permission, error) {
	sourceARN, err := executeAPISourceARN(region, functionARN, apiID)
	if err != nil {
		return cloud.Permission{}, err
	}
	return cloud.Permission{
		StatementID: GatewayStatementID,
		Action:      "lambda:InvokeFunction",
		Principal:   gatewayPrincipal,
		SourceARN:   sourceARN,
	}, nil
}

// executeAPISourceARN scopes the invoke permission to one API, taking the
// account from the function ARN.
func executeAPISourceARN(region, functionARN, apiID string) (string, error) {
	parts := strings.Split(functionARN, ":")
	if len(parts) < 7 || parts[4] == "" {
		return "", engine.ConfigError(functionARN, "cannot read the account of function ARN %q", functionARN)
	}
	return fmt.Sprintf("arn:aws:execute-api:%s:%s:%s/*/*", region, parts[4], apiID), nil
}

func corsEqual(current *cloud.CORS, want cloud.CORS) bool {
	if current == nil {
		return false
	}
	return slices.Equal(current.AllowOrigins, want.AllowOrigins) &&
		slices.Equal(current.AllowHeaders, want.AllowHeaders) &&
		slices.Equal(current.AllowMethods, want.AllowMethods) &&
		slices.Equal(current.ExposeHeaders, want.ExposeHeaders) &&
		current.MaxAge == want.MaxAge
}
