package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/domain/gatekeeper"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/domain/session"
)

// CookiePolicy holds the attributes of the token cookies.
type CookiePolicy struct {
	Secure bool
	// Fallback is the lifetime of a token without an exp claim.
	Fallback time.Duration
}

func (p CookiePolicy) tokenCookie(name, value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   session.CookieMaxAge(value, now, p.Fallback),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetTokens writes the accessToken and refreshToken cookies.
func (p CookiePolicy) SetTokens(c *gin.Context, access, refresh string) {
	now := time.Now()
	http.SetCookie(c.Writer, p.tokenCookie(session.AccessTokenCookie, access, now))
	http.SetCookie(c.Writer, p.tokenCookie(session.RefreshTokenCookie, refresh, now))
}

// ClearTokens expires both token cookies.
func (p CookiePolicy) ClearTokens(c *gin.Context) {
	for _, name := range []string{session.AccessTokenCookie, session.RefreshTokenCookie} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   p.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setBusinessType(c *gin.Context, bt modules.BusinessType) {
	c.Header(gatekeeper.BusinessTypeHeader, string(bt))
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     gatekeeper.BusinessTypeCookie,
		Value:    string(bt),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

func clearBusinessType(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:   gatekeeper.BusinessTypeCookie,
		Path:   "/",
		MaxAge: -1,
	})
}

func cookieValue(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
