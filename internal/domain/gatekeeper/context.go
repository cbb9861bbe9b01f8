package gatekeeper

import (
	"context"

	"ambrosia-pos-gateway/internal/domain/modules"
)

// Source records where a request's business type came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceCookie  Source = "cookie"
	SourceUnknown Source = "unknown"
)

// RequestContext is populated once per request by the gate. Everything
// downstream reads the business type from here and nowhere else.
type RequestContext struct {
	Path            string
	HasRefreshToken bool
	Setup           Setup
	BusinessType    modules.BusinessType
	Source          Source
}

type contextKey struct{}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the request context, or an empty one with an unknown
// business type when the gate did not run.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(contextKey{}).(*RequestContext); ok && rc != nil {
		return rc
	}
	return &RequestContext{Source: SourceUnknown}
}

// Cookie and header carrying the business type to the browser.
const (
	BusinessTypeCookie = "businessType"
	BusinessTypeHeader = "x-business-type"
)
