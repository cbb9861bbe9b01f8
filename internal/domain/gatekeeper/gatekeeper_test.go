package gatekeeper

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/modules"
)

type fakeSource struct {
	setup      backend.SetupStatus
	setupErr   error
	bt         modules.BusinessType
	btErr      error
	setupCalls atomic.Int32
	btCalls    atomic.Int32
	block      bool
}

func (f *fakeSource) InitialSetup(ctx context.Context, _ string) (backend.SetupStatus, error) {
	f.setupCalls.Add(1)
	if f.block {
		<-ctx.Done()
		return backend.SetupStatus{}, ctx.Err()
	}
	return f.setup, f.setupErr
}

func (f *fakeSource) BusinessType(context.Context, string) (modules.BusinessType, error) {
	f.btCalls.Add(1)
	return f.bt, f.btErr
}

var complete = backend.SetupStatus{Initialized: true}

func TestDecideNotInitialized(t *testing.T) {
	setup := Setup{Evaluated: true, Initialized: false}
	for _, p := range []string{"/", "/auth", "/store/orders/42", "/reports"} {
		for _, token := range []bool{true, false} {
			d := Decide(DefaultPaths(), Input{Path: p, HasRefreshToken: token, Setup: setup})
			assert.Equal(t, Redirect, d.Action, p)
			assert.Equal(t, "/onboarding", d.Location, p)
		}
	}
	d := Decide(DefaultPaths(), Input{Path: "/onboarding/step-2", Setup: setup})
	assert.Equal(t, Allow, d.Action)
}

func TestDecideNeedsBusinessType(t *testing.T) {
	setup := Setup{Evaluated: true, Initialized: true, NeedsBusinessType: true}
	d := Decide(DefaultPaths(), Input{Path: "/", HasRefreshToken: true, Setup: setup})
	assert.Equal(t, redirect("/onboarding", "business type missing"), d)

	d = Decide(DefaultPaths(), Input{Path: "/onboarding", Setup: setup})
	assert.Equal(t, Allow, d.Action)
}

func TestDecideOnboardingFinished(t *testing.T) {
	setup := Setup{Evaluated: true, Initialized: true}

	d := Decide(DefaultPaths(), Input{Path: "/onboarding", HasRefreshToken: true, Setup: setup})
	assert.Equal(t, "/", d.Location)

	d = Decide(DefaultPaths(), Input{Path: "/onboarding", HasRefreshToken: false, Setup: setup})
	assert.Equal(t, "/auth", d.Location)
}

func TestDecideAuthGate(t *testing.T) {
	setup := Setup{Evaluated: true, Initialized: true}
	tests := []struct {
		name  string
		path  string
		token bool
		want  Decision
	}{
		{"protected without token", "/reports", false, redirect("/auth", "unauthenticated")},
		{"protected with token", "/reports", true, allow()},
		{"login without token", "/auth", false, allow()},
		{"login with token", "/auth/login", true, redirect("/", "already authenticated")},
		{"sibling of auth is protected", "/authors", false, redirect("/auth", "unauthenticated")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(DefaultPaths(), Input{Path: tt.path, HasRefreshToken: tt.token, Setup: setup})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPassThrough(t *testing.T) {
	p := DefaultPaths()
	for _, path := range []string{"/api/orders", "/api", "/ws", "/_ambrosia/healthz", "/static/app.js", "/favicon.ico", "/logo.svg", "/images/a.png"} {
		assert.True(t, p.IsPassThrough(path), path)
	}
	for _, path := range []string{"/", "/store/orders/42", "/apis", "/onboarding"} {
		assert.False(t, p.IsPassThrough(path), path)
	}
}

func TestEvaluatePassThroughSkipsBackend(t *testing.T) {
	src := &fakeSource{setup: complete}
	g := New(src, Options{}, nil)

	res := g.Evaluate(context.Background(), Request{Path: "/api/orders"})
	assert.True(t, res.PassThrough)
	assert.Nil(t, res.Context)
	assert.Zero(t, src.setupCalls.Load())
	assert.Zero(t, src.btCalls.Load())
}

func TestEvaluateConflictMeansComplete(t *testing.T) {
	src := &fakeSource{
		setupErr: &apiclient.Error{Kind: apiclient.KindHTTP, Status: http.StatusConflict},
		bt:       modules.BusinessStore,
	}
	g := New(src, Options{}, nil)

	res := g.Evaluate(context.Background(), Request{Path: "/onboarding", RefreshToken: "r"})
	assert.Equal(t, redirect("/", "onboarding finished"), res.Decision)
	assert.True(t, res.Context.Setup.Evaluated)
}

func TestEvaluateFailOpen(t *testing.T) {
	src := &fakeSource{setupErr: errors.New("connection refused"), bt: modules.BusinessRestaurant}
	g := New(src, Options{}, nil)

	for _, path := range []string{"/", "/onboarding", "/spaces"} {
		res := g.Evaluate(context.Background(), Request{Path: path, RefreshToken: "r"})
		assert.Equal(t, Allow, res.Decision.Action, path)
		assert.False(t, res.Context.Setup.Evaluated)
	}
}

func TestEvaluateTimeoutFailsOpen(t *testing.T) {
	src := &fakeSource{block: true, bt: modules.BusinessStore}
	g := New(src, Options{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	res := g.Evaluate(context.Background(), Request{Path: "/store", RefreshToken: "r"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Allow, res.Decision.Action)
	assert.Equal(t, modules.BusinessStore, res.Context.BusinessType)
}

func TestEvaluateBusinessType(t *testing.T) {
	t.Run("backend value wins", func(t *testing.T) {
		g := New(&fakeSource{setup: complete, bt: modules.BusinessStore}, Options{}, nil)
		res := g.Evaluate(context.Background(), Request{Path: "/", RefreshToken: "r", BusinessTypeCookie: "restaurant"})
		assert.Equal(t, CookieSet, res.CookieAction)
		assert.Equal(t, modules.BusinessStore, res.Context.BusinessType)
		assert.Equal(t, SourceBackend, res.Context.Source)
	})
	t.Run("invalid value clears cookie", func(t *testing.T) {
		g := New(&fakeSource{setup: complete}, Options{}, nil)
		res := g.Evaluate(context.Background(), Request{Path: "/", RefreshToken: "r", BusinessTypeCookie: "store"})
		assert.Equal(t, CookieClear, res.CookieAction)
		assert.Equal(t, modules.BusinessUnknown, res.Context.BusinessType)
	})
	t.Run("failure falls back to cookie", func(t *testing.T) {
		g := New(&fakeSource{setup: complete, btErr: errors.New("boom")}, Options{}, nil)
		res := g.Evaluate(context.Background(), Request{Path: "/", RefreshToken: "r", BusinessTypeCookie: "restaurant"})
		assert.Equal(t, CookieKeep, res.CookieAction)
		assert.Equal(t, modules.BusinessRestaurant, res.Context.BusinessType)
		assert.Equal(t, SourceCookie, res.Context.Source)
	})
	t.Run("redirect skips config", func(t *testing.T) {
		src := &fakeSource{setup: complete, bt: modules.BusinessStore}
		res := New(src, Options{}, nil).Evaluate(context.Background(), Request{Path: "/reports"})
		require.Equal(t, Redirect, res.Decision.Action)
		assert.Zero(t, src.btCalls.Load())
	})
}

func TestRequestContextRoundTrip(t *testing.T) {
	rc := &RequestContext{BusinessType: modules.BusinessStore, Source: SourceBackend}
	ctx := WithRequestContext(context.Background(), rc)
	assert.Same(t, rc, FromContext(ctx))
	assert.Equal(t, SourceUnknown, FromContext(context.Background()).Source)
}
