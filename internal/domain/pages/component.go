// Package pages resolves route components from a statically registered catalogue.
package pages

import (
	"context"
	"fmt"
	"strings"

	"ambrosia-pos-gateway/internal/domain/modules"
)

// ComponentKey identifies one resolution. Two equal keys always resolve to the
// same Component for the life of a Loader.
type ComponentKey struct {
	Base           modules.ComponentBase
	Path           string
	File           string
	LoadingMessage string
}

// KeyFor derives the key for a matched route.
func KeyFor(rc *modules.ResolvedRouteConfig, loadingMessage string) ComponentKey {
	return ComponentKey{
		Base:           rc.Base(),
		Path:           rc.ComponentPath(),
		File:           rc.Route.Component,
		LoadingMessage: loadingMessage,
	}
}

func (k ComponentKey) String() string {
	return fmt.Sprintf("%s(base=%s path=%s)", k.File, k.Base, k.Path)
}

// Props is the input a component renders from.
type Props struct {
	Title        string
	Params       map[string]string
	BusinessType modules.BusinessType
	Query        map[string]string
}

// View is what the HTML shell mounts.
type View struct {
	// ComponentID is the catalogue location the client bundle mounts, for
	// example "pages/store/Orders/OrdersPage".
	ComponentID    string
	Name           string
	Title          string
	LoadingMessage string
	Params         map[string]string
	BusinessType   modules.BusinessType
	Props          map[string]any
}

// Component renders a View for one request.
type Component interface {
	Name() string
	Render(ctx context.Context, props Props) (*View, error)
}

// Factory builds a Component. It runs once per ComponentKey per Loader.
type Factory func(location string) Component

// ClientPage is the component used for every client rendered page. The server
// only describes which bundle entry to mount and with which props.
type ClientPage struct {
	name     string
	location string
	props    map[string]any
}

// ClientPageFactory returns a Factory for a ClientPage named name with static props.
func ClientPageFactory(name string, props map[string]any) Factory {
	return func(location string) Component {
		return &ClientPage{name: name, location: location, props: props}
	}
}

func (p *ClientPage) Name() string { return p.name }

func (p *ClientPage) Render(_ context.Context, props Props) (*View, error) {
	merged := make(map[string]any, len(p.props)+len(props.Query))
	for k, v := range p.props {
		merged[k] = v
	}
	for k, v := range props.Query {
		merged[k] = v
	}
	return &View{
		ComponentID:  p.location,
		Name:         p.name,
		Title:        props.Title,
		Params:       props.Params,
		BusinessType: props.BusinessType,
		Props:        merged,
	}, nil
}

func joinLocation(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
