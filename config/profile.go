// Package config reads host profiles: YAML documents describing which
// runtime to start and which component to call.
//
//	runtime_config: Sample.runtimeconfig.json
//	properties:
//	  System.Globalization.Invariant: "true"
//	component:
//	  assembly: Sample.dll
//	  type: Sample.Api, Sample
//	  strategy: path
//
// Relative paths are resolved against the profile's directory.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/facade"
	"github.com/wippyai/clr-host/runtime"
)

// Strategy selects how a component assembly is loaded.
type Strategy string

const (
	// StrategyPath lets the runtime load the assembly from disk.
	StrategyPath Strategy = "path"
	// StrategyMemory loads the image through a component helper.
	StrategyMemory Strategy = "memory"
	// StrategyRuntimeBytes loads the image through load_assembly_bytes.
	StrategyRuntimeBytes Strategy = "runtime_bytes"
)

// Profile is a host profile.
type Profile struct {
	Hostfxr    string `yaml:"hostfxr,omitempty" json:"hostfxr,omitempty" validate:"excluded_with=Nethost" jsonschema:"description=Path of the hostfxr library"`
	Nethost    string `yaml:"nethost,omitempty" json:"nethost,omitempty" jsonschema:"description=Path of the nethost library used to locate hostfxr"`
	DotnetRoot string `yaml:"dotnet_root,omitempty" json:"dotnet_root,omitempty" jsonschema:"description=.NET install root"`

	RuntimeConfig string   `yaml:"runtime_config,omitempty" json:"runtime_config,omitempty" validate:"required_without=CommandLine,excluded_with=CommandLine" jsonschema:"description=runtimeconfig.json for component hosting"`
	CommandLine   []string `yaml:"command_line,omitempty" json:"command_line,omitempty" validate:"required_without=RuntimeConfig,dive,required" jsonschema:"description=Application command line; the first entry is the entry assembly"`

	HostPath    string            `yaml:"host_path,omitempty" json:"host_path,omitempty"`
	Properties  map[string]string `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive,keys,required,endkeys"`
	KeepContext bool              `yaml:"keep_context,omitempty" json:"keep_context,omitempty"`

	Component *Component `yaml:"component,omitempty" json:"component,omitempty"`

	dir string
}

// Component names the managed component and its entry points.
type Component struct {
	Assembly string   `yaml:"assembly" json:"assembly" validate:"required"`
	Type     string   `yaml:"type" json:"type" validate:"required" jsonschema:"description=Assembly-qualified type name"`
	Strategy Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty" validate:"omitempty,oneof=path memory runtime_bytes" jsonschema:"enum=path,enum=memory,enum=runtime_bytes,default=path"`
	Helper   *Helper  `yaml:"helper,omitempty" json:"helper,omitempty" validate:"required_if=Strategy memory"`

	Create    string `yaml:"create,omitempty" json:"create,omitempty" jsonschema:"default=Create"`
	Configure string `yaml:"configure,omitempty" json:"configure,omitempty" jsonschema:"default=Configure"`
	Invoke    string `yaml:"invoke,omitempty" json:"invoke,omitempty" jsonschema:"default=Invoke"`
}

// Helper is a component-provided in-memory loader.
type Helper struct {
	Assembly string `yaml:"assembly" json:"assembly" validate:"required"`
	Type     string `yaml:"type" json:"type" validate:"required"`
	Method   string `yaml:"method,omitempty" json:"method,omitempty" jsonschema:"default=LoadAssemblyFromMemory"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidConfig(path, err)
	}
	p, err := Parse(data)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = path
		}
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.InvalidConfig(path, err)
	}
	p.dir = abs
	return p, nil
}

// Parse decodes and validates a profile. Unknown keys are rejected.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errors.InvalidConfig("", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks field constraints.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.InvalidConfig("", err)
	}
	return nil
}

// Dir is the directory relative paths are resolved against; empty for a
// profile that was not loaded from a file.
func (p *Profile) Dir() string { return p.dir }

// Resolve makes a profile-relative path absolute.
func (p *Profile) Resolve(path string) string {
	if path == "" || p.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.dir, path)
}

// HostConfig converts the profile into a runtime.Config.
func (p *Profile) HostConfig() runtime.Config {
	cfg := runtime.Config{
		HostfxrPath:   p.Resolve(p.Hostfxr),
		NethostPath:   p.Resolve(p.Nethost),
		DotnetRoot:    p.Resolve(p.DotnetRoot),
		RuntimeConfig: p.Resolve(p.RuntimeConfig),
		HostPath:      p.HostPath,
		KeepContext:   p.KeepContext,
	}
	if len(p.CommandLine) > 0 {
		cfg.CommandLine = append([]string{p.Resolve(p.CommandLine[0])}, p.CommandLine[1:]...)
	}
	if len(p.Properties) > 0 {
		cfg.Properties = make(map[string]string, len(p.Properties))
		for k, v := range p.Properties {
			cfg.Properties[k] = v
		}
	}
	return cfg
}

// Names returns the component's entry point names, defaulting each one
// that is not set.
func (c *Component) Names() facade.Names {
	n := facade.DefaultNames(c.Type)
	if c.Create != "" {
		n.Create = c.Create
	}
	if c.Configure != "" {
		n.Configure = c.Configure
	}
	if c.Invoke != "" {
		n.Invoke = c.Invoke
	}
	return n
}

// LoadStrategy returns the strategy, StrategyPath when unset.
func (c *Component) LoadStrategy() Strategy {
	if c.Strategy == "" {
		return StrategyPath
	}
	return c.Strategy
}
