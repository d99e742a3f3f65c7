// Package eval loads a project configuration from Pkl or YAML.
package eval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"
	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/picklr-io/shipyard/internal/ir"
	"gopkg.in/yaml.v3"
)

// ConfigFiles are the file names searched for, in order.
var ConfigFiles = []string{"shipyard.pkl", "shipyard.yaml", "shipyard.yml"}

// Prefixes of environment values read from a parameter store at load time.
var referencePrefixes = []string{"ssm:", "secretsmanager:"}

// ValueResolver reads referenced configuration values.
type ValueResolver interface {
	Resolve(ctx context.Context, region, ref string) (string, error)
}

// Loader reads and normalizes the project configuration of a directory.
type Loader struct {
	dir        string
	resolver   ValueResolver
	properties map[string]string
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithResolver enables ssm: and secretsmanager: environment references.
func WithResolver(r ValueResolver) LoaderOption {
	return func(l *Loader) { l.resolver = r }
}

// WithProperties passes external properties to the Pkl evaluator.
func WithProperties(props map[string]string) LoaderOption {
	return func(l *Loader) { l.properties = props }
}

func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Find returns the path of the project configuration file.
func (l *Loader) Find() (string, error) {
	for _, name := range ConfigFiles {
		path := filepath.Join(l.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", engine.ConfigError(l.dir, "no project configuration found (looked for %s)", strings.Join(ConfigFiles, ", "))
}

// Load finds, decodes and normalizes the project configuration.
func (l *Loader) Load(ctx context.Context) (*ir.Project, error) {
	path, err := l.Find()
	if err != nil {
		return nil, err
	}
	return l.LoadFile(ctx, path)
}

// LoadFile decodes the configuration at path. Relative directories are
// resolved against the file's directory, defaults are applied and parameter
// references are replaced by their values.
func (l *Loader) LoadFile(ctx context.Context, path string) (*ir.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	var p *ir.Project
	switch filepath.Ext(abs) {
	case ".pkl":
		p, err = l.evaluatePkl(ctx, abs)
	case ".yaml", ".yml":
		p, err = decodeYAMLFile(abs)
	default:
		return nil, engine.ConfigError(path, "unsupported configuration format %q", filepath.Ext(abs))
	}
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(abs)
	for _, s := range p.Services {
		if s == nil {
			continue
		}
		if s.Function != nil {
			s.Function.CodeDirectory = resolveDir(base, s.Function.CodeDirectory)
		}
		if s.Website != nil {
			s.Website.SourceDirectory = resolveDir(base, s.Website.SourceDirectory)
		}
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	if err := l.resolveReferences(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Loader) evaluatePkl(ctx context.Context, path string) (*ir.Project, error) {
	u, err := url.Parse("file://" + filepath.Dir(path) + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(l.properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range l.properties {
				o.Properties[k] = v
			}
		})
	}

	var evaluator pkl.Evaluator
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(path), "PklProject")); statErr == nil {
		evaluator, err = pkl.NewProjectEvaluator(ctx, u, opts...)
	} else {
		evaluator, err = pkl.NewEvaluator(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var p ir.Project
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &p); err != nil {
		return nil, engine.ConfigError(path, "failed to evaluate config: %v", err)
	}
	return &p, nil
}

func decodeYAMLFile(path string) (*ir.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	p, err := DecodeYAML(data)
	if err != nil {
		return nil, engine.ConfigError(path, "%v", err)
	}
	return p, nil
}

// DecodeYAML decodes a YAML project document. Unknown keys are rejected.
func DecodeYAML(data []byte) (*ir.Project, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p ir.Project
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("configuration is empty")
		}
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &p, nil
}

func resolveDir(base, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// IsReference reports whether v names a value kept in a parameter store.
func IsReference(v string) bool {
	for _, prefix := range referencePrefixes {
		if strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return false
}

func (l *Loader) resolveReferences(ctx context.Context, p *ir.Project) error {
	for _, s := range p.Services {
		if s.Function == nil {
			continue
		}
		for key, v := range s.Function.Environment {
			if !IsReference(v) {
				continue
			}
			if l.resolver == nil {
				return engine.ConfigError(s.Name, "environment %s references %s but no parameter resolver is configured", key, v)
			}
			resolved, err := l.resolver.Resolve(ctx, s.Function.Region, v)
			if err != nil {
				return fmt.Errorf("failed to resolve environment %s of service %s: %w", key, s.Name, err)
			}
			s.Function.Environment[key] = resolved
		}
	}
	return nil
}
