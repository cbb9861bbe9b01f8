package modules

import (
	"fmt"

	"ambrosia-pos-gateway/internal/platform/errors"
)

type compiledModule struct {
	module   Module
	patterns []pattern
}

// Registry is an immutable, ordered set of modules. It is safe for concurrent use.
type Registry struct {
	modules []compiledModule
	byKey   map[string]int
}

// NewRegistry compiles every route pattern. Registration order is match order.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{byKey: make(map[string]int, len(mods))}
	for _, m := range mods {
		if m.Key == "" {
			return nil, errors.New(errors.KindConfig, "modules.register", "module key is required")
		}
		if _, dup := r.byKey[m.Key]; dup {
			return nil, errors.New(errors.KindConfig, "modules.register", fmt.Sprintf("duplicate module %q", m.Key))
		}
		switch m.ComponentBase {
		case "", BaseModules, BasePages:
		default:
			return nil, errors.New(errors.KindConfig, "modules.register", fmt.Sprintf("module %q: unknown component base %q", m.Key, m.ComponentBase))
		}

		cm := compiledModule{module: m, patterns: make([]pattern, 0, len(m.Routes))}
		cm.module.Routes = append([]Route(nil), m.Routes...)
		for _, route := range m.Routes {
			if route.Component == "" {
				return nil, errors.New(errors.KindConfig, "modules.register", fmt.Sprintf("module %q route %q: component is required", m.Key, route.Path))
			}
			p, err := compilePattern(route.Path)
			if err != nil {
				return nil, errors.Wrap(errors.KindConfig, "modules.register", "module "+m.Key, err)
			}
			cm.patterns = append(cm.patterns, p)
		}
		r.byKey[m.Key] = len(r.modules)
		r.modules = append(r.modules, cm)
	}
	return r, nil
}

// MustNewRegistry panics on an invalid catalogue. Meant for static tables.
func MustNewRegistry(mods ...Module) *Registry {
	r, err := NewRegistry(mods...)
	if err != nil {
		panic(err)
	}
	return r
}

// Modules returns every registered module in registration order.
func (r *Registry) Modules() []Module {
	out := make([]Module, len(r.modules))
	for i, cm := range r.modules {
		out[i] = cm.module
	}
	return out
}

// Enabled returns the enabled modules in registration order.
func (r *Registry) Enabled() []Module {
	out := make([]Module, 0, len(r.modules))
	for _, cm := range r.modules {
		if cm.module.Enabled {
			out = append(out, cm.module)
		}
	}
	return out
}

func (r *Registry) Module(key string) (Module, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Module{}, false
	}
	return r.modules[i].module, true
}

// FindRouteConfig returns the first route, across enabled modules in order,
// whose pattern matches pathname and whose business restriction admits
// businessType. A false result means not found.
func (r *Registry) FindRouteConfig(pathname string, businessType BusinessType) (*ResolvedRouteConfig, bool) {
	path := splitPath(pathname)
	for i := range r.modules {
		cm := &r.modules[i]
		if !cm.module.Enabled {
			continue
		}
		for j, p := range cm.patterns {
			route := &cm.module.Routes[j]
			if !MatchesBusiness(*route, businessType) {
				continue
			}
			params, ok := p.match(path)
			if !ok {
				continue
			}
			module := cm.module
			return &ResolvedRouteConfig{Module: &module, Route: route, Params: params}, true
		}
	}
	return nil, false
}
