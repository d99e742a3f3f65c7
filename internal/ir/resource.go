package ir

// Service kinds.
const (
	KindFunction = "function"
	KindWebsite  = "website"
)

// Service is one deployable unit of a project.
type Service struct {
	Name     string          `pkl:"name" yaml:"name" validate:"required,max=40,excludes=/"`
	Kind     string          `pkl:"kind" yaml:"kind" validate:"required,oneof=function website"`
	Function *FunctionConfig `pkl:"function" yaml:"function" validate:"-"`
	Website  *WebsiteConfig  `pkl:"website" yaml:"website" validate:"-"`
}

// DomainName returns the identity key of the service's primary resource.
func (s *Service) DomainName() string {
	switch {
	case s.Function != nil:
		return s.Function.DomainName
	case s.Website != nil:
		return s.Website.DomainName
	}
	return ""
}

// FunctionConfig declares a serverless backend reachable on DomainName.
type FunctionConfig struct {
	DomainName          string            `pkl:"domainName" yaml:"domainName" validate:"required,fqdn"`
	Region              string            `pkl:"region" yaml:"region" validate:"required"`
	Runtime             string            `pkl:"runtime" yaml:"runtime" validate:"required"`
	Handler             string            `pkl:"handler" yaml:"handler" validate:"required"`
	ExecutionRole       string            `pkl:"executionRole" yaml:"executionRole" validate:"required,max=64"`
	MemorySize          int32             `pkl:"memorySize" yaml:"memorySize" validate:"min=128,max=10240"`
	TimeoutSeconds      int32             `pkl:"timeout" yaml:"timeout" validate:"min=1,max=900"`
	Environment         map[string]string `pkl:"environment" yaml:"environment"`
	ReservedConcurrency *int32            `pkl:"reservedConcurrency" yaml:"reservedConcurrency" validate:"omitempty,min=0"`
	CodeDirectory       string            `pkl:"codeDirectory" yaml:"codeDirectory" validate:"required"`
	Triggers            []TriggerConfig   `pkl:"triggers" yaml:"triggers" validate:"dive"`
	LogRetentionDays    *int32            `pkl:"logRetentionDays" yaml:"logRetentionDays" validate:"omitempty,oneof=1 3 5 7 14 30 60 90 120 150 180 365 400 545 731 1096 1827 2192 2557 2922 3288 3653"`
}

// TriggerConfig declares a background method invoked on a schedule or by
// matching events.
type TriggerConfig struct {
	Path         string `pkl:"path" yaml:"path" validate:"required"`
	Kind         string `pkl:"kind" yaml:"kind" validate:"omitempty,oneof=schedule event"`
	RateMs       int64  `pkl:"rateMs" yaml:"rateMs"`
	Cron         string `pkl:"cron" yaml:"cron"`
	EventPattern string `pkl:"eventPattern" yaml:"eventPattern" validate:"omitempty,json"`
}

// WebsiteConfig declares a static website served from a CDN on DomainName.
type WebsiteConfig struct {
	DomainName            string   `pkl:"domainName" yaml:"domainName" validate:"required,fqdn"`
	Region                string   `pkl:"region" yaml:"region" validate:"required"`
	SourceDirectory       string   `pkl:"sourceDirectory" yaml:"sourceDirectory" validate:"required"`
	IndexPage             string   `pkl:"indexPage" yaml:"indexPage" validate:"required,excludes=/"`
	ImmutableFilePatterns []string `pkl:"immutableFilePatterns" yaml:"immutableFilePatterns" validate:"dive,glob"`
	PriceClass            string   `pkl:"priceClass" yaml:"priceClass" validate:"oneof=PriceClass_100 PriceClass_200 PriceClass_All"`
}
