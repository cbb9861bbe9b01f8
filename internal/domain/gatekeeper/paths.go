package gatekeeper

import "strings"

// Paths names the routes the gate redirects to and the prefixes it ignores.
type Paths struct {
	Home       string
	Auth       string
	Onboarding string
	// PassThrough prefixes are served without any backend call.
	PassThrough []string
}

// DefaultPassThrough covers the api proxy, the websocket bridge, gateway
// endpoints and static assets.
var DefaultPassThrough = []string{"/api", "/ws", "/_ambrosia", "/static", "/_next", "/favicon.ico"}

func DefaultPaths() Paths {
	return Paths{
		Home:        "/",
		Auth:        "/auth",
		Onboarding:  "/onboarding",
		PassThrough: DefaultPassThrough,
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.Home == "" {
		p.Home = d.Home
	}
	if p.Auth == "" {
		p.Auth = d.Auth
	}
	if p.Onboarding == "" {
		p.Onboarding = d.Onboarding
	}
	if len(p.PassThrough) == 0 {
		p.PassThrough = d.PassThrough
	}
	return p
}

// IsPassThrough reports whether path skips gating: a listed prefix or a
// last segment that looks like a file name.
func (p Paths) IsPassThrough(path string) bool {
	for _, prefix := range p.PassThrough {
		if under(path, prefix) {
			return true
		}
	}
	last := path[strings.LastIndex(path, "/")+1:]
	return strings.Contains(last, ".")
}

func (p Paths) IsOnboarding(path string) bool { return under(path, p.Onboarding) }

func (p Paths) IsAuth(path string) bool { return under(path, p.Auth) }

// under matches prefix itself and anything below it, not siblings sharing
// a name prefix (/authors is not under /auth).
func under(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
