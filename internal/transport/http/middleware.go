package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/gatekeeper"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/logging"
)

const requestContextKey = "gate"

// GateMiddleware runs the gatekeeper on every request. Redirects abort with
// 307; allowed requests carry the RequestContext downstream.
func GateMiddleware(gate *gatekeeper.Gatekeeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := gate.Evaluate(c.Request.Context(), gatekeeper.Request{
			Path:               c.Request.URL.Path,
			Cookie:             c.GetHeader("Cookie"),
			RefreshToken:       cookieValue(c, session.RefreshTokenCookie),
			BusinessTypeCookie: cookieValue(c, gatekeeper.BusinessTypeCookie),
		})
		if res.PassThrough {
			c.Next()
			return
		}

		if res.Decision.Action == gatekeeper.Redirect {
			c.Redirect(http.StatusTemporaryRedirect, res.Decision.Location)
			c.Abort()
			return
		}

		switch res.CookieAction {
		case gatekeeper.CookieSet:
			setBusinessType(c, res.Context.BusinessType)
		case gatekeeper.CookieClear:
			clearBusinessType(c)
		}

		c.Set(requestContextKey, res.Context)
		c.Request = c.Request.WithContext(gatekeeper.WithRequestContext(c.Request.Context(), res.Context))
		c.Next()
	}
}

// RequestContext returns what the gate stored for c.
func RequestContext(c *gin.Context) *gatekeeper.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if rc, ok := v.(*gatekeeper.RequestContext); ok {
			return rc
		}
	}
	return gatekeeper.FromContext(c.Request.Context())
}

// SessionStore is what the session middleware needs from the store.
type SessionStore interface {
	Get(ctx context.Context, key string) (session.Session, error)
	Save(ctx context.Context, s session.Session) error
}

const sessionKeyKey = "session_key"

// SessionMiddleware binds the browser's token cookies to a stored session,
// adopting cookies issued by the backend directly, and attaches the session
// key to the request context for the API client.
func SessionMiddleware(store SessionStore, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh := cookieValue(c, session.RefreshTokenCookie)
		if refresh == "" {
			c.Next()
			return
		}

		key := session.KeyFor(refresh)
		ctx := c.Request.Context()
		if _, err := store.Get(ctx, key); err != nil {
			s := session.New(cookieValue(c, session.AccessTokenCookie), refresh)
			if err := store.Save(ctx, s); err != nil {
				logger.WarnTag("SESSION", "adopt session failed: %v", err)
			}
		}

		c.Set(sessionKeyKey, key)
		c.Request = c.Request.WithContext(apiclient.WithSession(ctx, key))
		c.Next()
	}
}

// SessionKey returns the session key bound by SessionMiddleware, if any.
func SessionKey(c *gin.Context) string {
	return c.GetString(sessionKeyKey)
}

// syncTokens rewrites the token cookies when a refresh during this request
// replaced the pair the browser sent.
func syncTokens(c *gin.Context, store SessionStore, policy CookiePolicy) {
	key := SessionKey(c)
	if key == "" {
		return
	}
	s, err := store.Get(c.Request.Context(), key)
	if err != nil {
		return
	}
	if s.RefreshToken != cookieValue(c, session.RefreshTokenCookie) ||
		(s.AccessToken != "" && s.AccessToken != cookieValue(c, session.AccessTokenCookie)) {
		policy.SetTokens(c, s.AccessToken, s.RefreshToken)
	}
}
