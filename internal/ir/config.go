package ir

// Project is the fully resolved configuration of a deployment.
type Project struct {
	Name      string          `pkl:"name" yaml:"name" validate:"required"`
	Services  []*Service      `pkl:"services" yaml:"services" validate:"required,min=1,dive,required"`
	Ownership OwnershipConfig `pkl:"ownership" yaml:"ownership"`
	Ledger    LedgerConfig    `pkl:"ledger" yaml:"ledger"`
}

// Service returns the service with the given name.
func (p *Project) Service(name string) (*Service, bool) {
	for _, s := range p.Services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// OwnershipConfig lists managed-by values accepted in addition to the one
// this release writes.
type OwnershipConfig struct {
	Recognized        []string `pkl:"recognized" yaml:"recognized"`
	WebsiteRecognized []string `pkl:"websiteRecognized" yaml:"websiteRecognized"`
}

// LedgerConfig selects where deployment results are recorded.
type LedgerConfig struct {
	Backend   string `pkl:"backend" yaml:"backend" validate:"omitempty,oneof=local s3"`
	Path      string `pkl:"path" yaml:"path"`
	Bucket    string `pkl:"bucket" yaml:"bucket" validate:"required_if=Backend s3"`
	Key       string `pkl:"key" yaml:"key"`
	Region    string `pkl:"region" yaml:"region"`
	LockTable string `pkl:"lockTable" yaml:"lockTable"`
}
