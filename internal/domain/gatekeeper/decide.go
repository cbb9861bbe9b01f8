// Package gatekeeper decides, per page request, whether to redirect to
// onboarding or auth, and which business type the request runs under.
package gatekeeper

// Setup is the evaluated onboarding state.
type Setup struct {
	// Evaluated is false when the backend could not be asked (fail open).
	Evaluated         bool
	Initialized       bool
	NeedsBusinessType bool
}

// Incomplete treats an unevaluated setup as complete.
func (s Setup) Incomplete() bool {
	return s.Evaluated && (!s.Initialized || s.NeedsBusinessType)
}

// Input is everything Decide looks at.
type Input struct {
	Path            string
	HasRefreshToken bool
	Setup           Setup
}

type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

type Decision struct {
	Action   Action
	Location string
	Reason   string
}

func allow() Decision { return Decision{Action: Allow, Reason: "allowed"} }

func redirect(to, reason string) Decision {
	return Decision{Action: Redirect, Location: to, Reason: reason}
}

// Decide applies the gating rules in order. The first rule that fires wins.
func Decide(paths Paths, in Input) Decision {
	paths = paths.withDefaults()
	onboarding := paths.IsOnboarding(in.Path)
	auth := paths.IsAuth(in.Path)
	s := in.Setup

	switch {
	case s.Evaluated && !s.Initialized && !onboarding:
		return redirect(paths.Onboarding, "not initialized")
	case s.Evaluated && s.NeedsBusinessType && !onboarding:
		return redirect(paths.Onboarding, "business type missing")
	case s.Evaluated && !s.Incomplete() && onboarding:
		if in.HasRefreshToken {
			return redirect(paths.Home, "onboarding finished")
		}
		return redirect(paths.Auth, "onboarding finished")
	case !auth && !onboarding && !in.HasRefreshToken:
		return redirect(paths.Auth, "unauthenticated")
	case auth && in.HasRefreshToken:
		return redirect(paths.Home, "already authenticated")
	}
	return allow()
}
