// Package modules holds the registry of feature modules and the route matcher
// that maps a request path onto one of their routes.
package modules

import "strings"

// BusinessType classifies the tenant. The zero value means unknown.
type BusinessType string

const (
	BusinessUnknown    BusinessType = ""
	BusinessStore      BusinessType = "store"
	BusinessRestaurant BusinessType = "restaurant"
)

// ParseBusinessType accepts "store" or "restaurant" (case and space insensitive).
func ParseBusinessType(raw string) (BusinessType, bool) {
	switch BusinessType(strings.ToLower(strings.TrimSpace(raw))) {
	case BusinessStore:
		return BusinessStore, true
	case BusinessRestaurant:
		return BusinessRestaurant, true
	default:
		return BusinessUnknown, false
	}
}

func (b BusinessType) Known() bool {
	return b == BusinessStore || b == BusinessRestaurant
}

// ComponentBase selects how a route's component is located.
type ComponentBase string

const (
	BaseModules ComponentBase = "modules"
	BasePages   ComponentBase = "components/pages"
)

// Route is one path pattern owned by a module.
type Route struct {
	// Path is "/"-separated. Segments starting with ":" capture one path
	// segment; a final "*" captures the remainder.
	Path      string
	Component string
	// ComponentPath overrides the module's component location for this route.
	ComponentPath string
	// Business restricts the route to one business type. Empty means both.
	Business         BusinessType
	RequiresOpenTurn bool
	Title            string
}

// Module is a feature area with its own routes.
type Module struct {
	Key           string
	Name          string
	Enabled       bool
	Routes        []Route
	ComponentBase ComponentBase
	ComponentPath string
}

// ResolvedRouteConfig is the result of a successful match. It lives for one request.
type ResolvedRouteConfig struct {
	Module *Module
	Route  *Route
	Params map[string]string
}

// Base returns the component base, defaulting to BasePages.
func (r *ResolvedRouteConfig) Base() ComponentBase {
	if r.Module.ComponentBase == "" {
		return BasePages
	}
	return r.Module.ComponentBase
}

// ComponentPath returns the route override, then the module override, then the module key.
func (r *ResolvedRouteConfig) ComponentPath() string {
	switch {
	case r.Route.ComponentPath != "":
		return r.Route.ComponentPath
	case r.Module.ComponentPath != "":
		return r.Module.ComponentPath
	default:
		return r.Module.Key
	}
}

// Title falls back to the module name when the route has none.
func (r *ResolvedRouteConfig) Title() string {
	if r.Route.Title != "" {
		return r.Route.Title
	}
	return r.Module.Name
}
