package hostfxr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/wippyai/clr-host/errors"
)

// Framework is a shared framework reference in a runtime config.
type Framework struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RuntimeOptions is the runtimeOptions object of a *.runtimeconfig.json.
type RuntimeOptions struct {
	TFM                string         `json:"tfm,omitempty"`
	RollForward        string         `json:"rollForward,omitempty"`
	Framework          *Framework     `json:"framework,omitempty"`
	Frameworks         []Framework    `json:"frameworks,omitempty"`
	IncludedFrameworks []Framework    `json:"includedFrameworks,omitempty"`
	ConfigProperties   map[string]any `json:"configProperties,omitempty"`
}

// RuntimeConfig is a parsed *.runtimeconfig.json.
type RuntimeConfig struct {
	Path           string          `json:"-"`
	RuntimeOptions *RuntimeOptions `json:"runtimeOptions"`
}

// ReadRuntimeConfig reads and checks the runtime config at path.
func ReadRuntimeConfig(path string) (*RuntimeConfig, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseInit, "runtime config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Path(path).
			Cause(err).
			Detail("cannot read runtime config").
			Build()
	}
	cfg, err := ParseRuntimeConfig(data)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = path
		}
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// ParseRuntimeConfig parses runtime config JSON. The document must carry
// runtimeOptions with at least one framework reference.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var cfg RuntimeConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Cause(err).
			Detail("malformed runtime config").
			Build()
	}
	opts := cfg.RuntimeOptions
	if opts == nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "runtime config has no runtimeOptions")
	}
	if opts.Framework == nil && len(opts.Frameworks) == 0 && len(opts.IncludedFrameworks) == 0 {
		return nil, errors.InvalidInput(errors.PhaseInit, "runtime config references no framework")
	}
	for _, fw := range cfg.FrameworkReferences() {
		if fw.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseInit, "runtime config has a framework without a name")
		}
	}
	return &cfg, nil
}

// FrameworkReferences returns every framework the config names, in
// document order.
func (c *RuntimeConfig) FrameworkReferences() []Framework {
	if c == nil || c.RuntimeOptions == nil {
		return nil
	}
	var out []Framework
	if c.RuntimeOptions.Framework != nil {
		out = append(out, *c.RuntimeOptions.Framework)
	}
	out = append(out, c.RuntimeOptions.Frameworks...)
	out = append(out, c.RuntimeOptions.IncludedFrameworks...)
	return out
}

// SelfContained reports whether the app ships its own frameworks.
func (c *RuntimeConfig) SelfContained() bool {
	return c != nil && c.RuntimeOptions != nil && len(c.RuntimeOptions.IncludedFrameworks) > 0
}

// Properties returns configProperties rendered as strings, sorted by name.
func (c *RuntimeConfig) Properties() []Property {
	if c == nil || c.RuntimeOptions == nil {
		return nil
	}
	props := make([]Property, 0, len(c.RuntimeOptions.ConfigProperties))
	for k, v := range c.RuntimeOptions.ConfigProperties {
		props = append(props, Property{Name: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}
