package gatekeeper

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
)

// StatusSource answers the two questions the gate asks the backend. The
// cookie argument is the browser's raw Cookie header.
type StatusSource interface {
	InitialSetup(ctx context.Context, cookie string) (backend.SetupStatus, error)
	BusinessType(ctx context.Context, cookie string) (modules.BusinessType, error)
}

// CookieAction tells the transport what to do with the businessType cookie.
type CookieAction int

const (
	CookieKeep CookieAction = iota
	CookieSet
	CookieClear
)

// Request is a page request as seen by the gate.
type Request struct {
	Path               string
	Cookie             string
	RefreshToken       string
	BusinessTypeCookie string
}

// Result of Evaluate. Context is nil for pass-through paths.
type Result struct {
	PassThrough  bool
	Decision     Decision
	Context      *RequestContext
	CookieAction CookieAction
}

type Options struct {
	Paths   Paths
	Timeout time.Duration
}

type Gatekeeper struct {
	source  StatusSource
	paths   Paths
	timeout time.Duration
	logger  *logging.Logger
}

func New(source StatusSource, opts Options, logger *logging.Logger) *Gatekeeper {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Gatekeeper{
		source:  source,
		paths:   opts.Paths.withDefaults(),
		timeout: timeout,
		logger:  logger,
	}
}

func (g *Gatekeeper) Paths() Paths { return g.paths }

// Evaluate runs the gate for one request. Backend failures never block the
// request; they are logged and the gate fails open.
func (g *Gatekeeper) Evaluate(ctx context.Context, req Request) Result {
	path := modules.NormalizePath(req.Path)
	if g.paths.IsPassThrough(path) {
		return Result{PassThrough: true, Decision: allow()}
	}

	ctx, end := observability.StartSpan(ctx, "gatekeeper", "evaluate")
	defer end(nil)

	in := Input{
		Path:            path,
		HasRefreshToken: req.RefreshToken != "",
		Setup:           g.setup(ctx, req.Cookie),
	}
	rc := &RequestContext{
		Path:            path,
		HasRefreshToken: in.HasRefreshToken,
		Setup:           in.Setup,
		Source:          SourceUnknown,
	}

	decision := Decide(g.paths, in)
	observability.RecordMetric(ctx, "gate_decisions_total", 1, map[string]string{"action": decision.Action.String()})
	if decision.Action == Redirect {
		g.logger.DebugTag("GATE", "%s -> %s (%s)", path, decision.Location, decision.Reason)
		return Result{Decision: decision, Context: rc}
	}

	action := CookieKeep
	bt, err := g.businessType(ctx, req.Cookie)
	switch {
	case err != nil:
		g.logger.WarnTag("GATE", "config lookup failed: %v", err)
		if cached, ok := modules.ParseBusinessType(req.BusinessTypeCookie); ok {
			rc.BusinessType, rc.Source = cached, SourceCookie
		}
	case bt.Known():
		rc.BusinessType, rc.Source = bt, SourceBackend
		action = CookieSet
	default:
		action = CookieClear
	}

	return Result{Decision: decision, Context: rc, CookieAction: action}
}

func (g *Gatekeeper) setup(ctx context.Context, cookie string) Setup {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	status, err := g.source.InitialSetup(ctx, cookie)
	if err == nil {
		return Setup{Evaluated: true, Initialized: status.Initialized, NeedsBusinessType: status.NeedsBusinessType}
	}

	var coded interface{ StatusCode() int }
	if stderrors.As(err, &coded) && coded.StatusCode() == http.StatusConflict {
		return Setup{Evaluated: true, Initialized: true}
	}

	g.logger.WarnTag("GATE", "initial setup check failed, continuing: %v", err)
	return Setup{}
}

func (g *Gatekeeper) businessType(ctx context.Context, cookie string) (modules.BusinessType, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.source.BusinessType(ctx, cookie)
}
