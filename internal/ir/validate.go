package ir

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/triggers"
)

// Defaults applied to omitted fields.
const (
	DefaultRuntime          = "nodejs20.x"
	DefaultHandler          = "handler.handler"
	DefaultExecutionRole    = "shipyard-backend-lambda-role-v1"
	DefaultMemorySize       = 128
	DefaultTimeoutSeconds   = 10
	DefaultIndexPage        = "index.html"
	DefaultPriceClass       = "PriceClass_100"
	DefaultImmutablePattern = "**/*.immutable.*"
	DefaultRegion           = "us-east-1"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
			return doublestar.ValidatePattern(fl.Field().String())
		})
	})
	return validate
}

// NewFunctionConfig applies defaults to c and validates it.
func NewFunctionConfig(c FunctionConfig) (*FunctionConfig, error) {
	c.applyDefaults()
	if err := validateStruct(c.DomainName, &c); err != nil {
		return nil, err
	}
	if err := triggers.Validate(c.DomainName, c.Declarations()); err != nil {
		return nil, err
	}
	if err := triggers.ValidateRuleNames(c.DomainName, engine.FunctionName(c.DomainName), c.Declarations()); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewWebsiteConfig applies defaults to c and validates it.
func NewWebsiteConfig(c WebsiteConfig) (*WebsiteConfig, error) {
	c.applyDefaults()
	if err := validateStruct(c.DomainName, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *FunctionConfig) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.Handler == "" {
		c.Handler = DefaultHandler
	}
	if c.ExecutionRole == "" {
		c.ExecutionRole = DefaultExecutionRole
	}
	if c.MemorySize == 0 {
		c.MemorySize = DefaultMemorySize
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	c.DomainName = engine.CanonicalDomain(c.DomainName)
	for i := range c.Triggers {
		if c.Triggers[i].Kind == "" {
			c.Triggers[i].Kind = triggers.KindSchedule
		}
	}
}

func (c *WebsiteConfig) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.IndexPage == "" {
		c.IndexPage = DefaultIndexPage
	}
	if c.PriceClass == "" {
		c.PriceClass = DefaultPriceClass
	}
	if c.ImmutableFilePatterns == nil {
		c.ImmutableFilePatterns = []string{DefaultImmutablePattern}
	}
	c.DomainName = engine.CanonicalDomain(c.DomainName)
}

// Declarations converts the configured triggers for the registrar.
func (c *FunctionConfig) Declarations() []triggers.Declaration {
	out := make([]triggers.Declaration, 0, len(c.Triggers))
	for _, t := range c.Triggers {
		out = append(out, triggers.Declaration{
			Path:         t.Path,
			Kind:         t.Kind,
			RateMs:       t.RateMs,
			Cron:         t.Cron,
			EventPattern: t.EventPattern,
		})
	}
	return out
}

// Normalize applies defaults and validates every service of the project.
// The service configs are replaced by their validated copies.
func (p *Project) Normalize() error {
	if err := validateStruct(p.Name, p); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, s := range p.Services {
		if seen[s.Name] {
			return engine.ConfigError(s.Name, "service %q is declared twice", s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case KindFunction:
			if s.Function == nil || s.Website != nil {
				return engine.ConfigError(s.Name, "a function service needs a function block and no website block")
			}
			fn, err := NewFunctionConfig(*s.Function)
			if err != nil {
				return fmt.Errorf("service %s: %w", s.Name, err)
			}
			s.Function = fn
		case KindWebsite:
			if s.Website == nil || s.Function != nil {
				return engine.ConfigError(s.Name, "a website service needs a website block and no function block")
			}
			site, err := NewWebsiteConfig(*s.Website)
			if err != nil {
				return fmt.Errorf("service %s: %w", s.Name, err)
			}
			s.Website = site
		}
	}
	return nil
}

func validateStruct(resource string, v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.ConfigError(resource, "invalid configuration: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return engine.ConfigError(resource, "invalid configuration: %s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "fqdn":
		return fmt.Sprintf("%s must be a valid DNS name, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "glob":
		return fmt.Sprintf("%s is not a valid glob pattern: %q", field, fe.Value())
	case "json":
		return fmt.Sprintf("%s must be valid JSON", field)
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
