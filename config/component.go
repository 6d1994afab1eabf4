package config

import (
	"github.com/wippyai/clr-host/assembly"
	"github.com/wippyai/clr-host/errors"
	"github.com/wippyai/clr-host/facade"
	"github.com/wippyai/clr-host/runtime"
)

// OpenComponent loads the profile's component into rt with its strategy
// and resolves its interface table.
func (p *Profile) OpenComponent(rt *runtime.Runtime) (*facade.Table, error) {
	if p.Component == nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidConfig).
			Path(p.dir).
			Detail("profile has no component").
			Build()
	}
	r, err := p.loadComponent(rt)
	if err != nil {
		return nil, err
	}
	return rt.Interface(r, p.Component.Names())
}

func (p *Profile) loadComponent(rt *runtime.Runtime) (assembly.Resolver, error) {
	c := p.Component
	path := p.Resolve(c.Assembly)

	switch c.LoadStrategy() {
	case StrategyMemory:
		if c.Helper == nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidConfig).
				Path(p.dir).
				Detail("memory strategy requires a helper").
				Build()
		}
		ml, err := rt.LoadHelper(p.Resolve(c.Helper.Assembly), c.Helper.Type, c.Helper.Method)
		if err != nil {
			return nil, err
		}
		if err := ml.LoadFile(path); err != nil {
			return nil, err
		}
		return ml, nil
	case StrategyRuntimeBytes:
		ml, err := rt.RuntimeBytesLoader()
		if err != nil {
			return nil, err
		}
		if err := ml.LoadFile(path); err != nil {
			return nil, err
		}
		return ml, nil
	default:
		return rt.LoadFromPath(path)
	}
}
