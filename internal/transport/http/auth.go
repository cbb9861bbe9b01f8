package httptransport

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/logging"
)

// Authenticator is the backend surface the auth routes need.
type Authenticator interface {
	Login(ctx context.Context, credentials any) (backend.Tokens, any, error)
	Refresh(ctx context.Context, key string) (session.Session, error)
	Logout(ctx context.Context, key string) error
}

// AuthHandler issues and clears the httpOnly token cookies.
type AuthHandler struct {
	auth    Authenticator
	store   SessionStore
	cookies CookiePolicy
	logger  *logging.Logger
}

func NewAuthHandler(auth Authenticator, store SessionStore, cookies CookiePolicy, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, store: store, cookies: cookies, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(router *Router) {
	group := router.Gateway.Group("/auth")
	group.POST("/login", h.Login)
	group.POST("/refresh", h.Refresh)
	group.POST("/logout", h.Logout)
}

// Login forwards credentials to the backend and stores the issued pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var credentials map[string]any
	if err := c.ShouldBindJSON(&credentials); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid credentials payload", nil)
		return
	}

	tokens, body, err := h.auth.Login(c.Request.Context(), credentials)
	if err != nil {
		h.logger.InfoTag("AUTH", "login rejected: %v", err)
		status := backend.Status(err)
		if status < 400 {
			status = http.StatusBadGateway
		}
		RespondError(c, status, message(err, "login failed"), nil)
		return
	}

	s := session.New(tokens.AccessToken, tokens.RefreshToken)
	if err := h.store.Save(c.Request.Context(), s); err != nil {
		h.logger.ErrorTag("AUTH", "save session failed: %v", err)
		RespondError(c, http.StatusInternalServerError, "could not store session", nil)
		return
	}

	h.cookies.SetTokens(c, tokens.AccessToken, tokens.RefreshToken)
	RespondSuccess(c, http.StatusOK, body, "logged in")
}

// Refresh exchanges the refresh cookie for a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh := cookieValue(c, session.RefreshTokenCookie)
	if refresh == "" {
		RespondError(c, http.StatusUnauthorized, "no refresh token", gin.H{"code": apiclient.CodeUnauthorized})
		return
	}

	key := session.KeyFor(refresh)
	if _, err := h.store.Get(c.Request.Context(), key); err != nil {
		if err := h.store.Save(c.Request.Context(), session.New(cookieValue(c, session.AccessTokenCookie), refresh)); err != nil {
			RespondError(c, http.StatusInternalServerError, "could not store session", nil)
			return
		}
	}

	next, err := h.auth.Refresh(c.Request.Context(), key)
	if err != nil {
		h.cookies.ClearTokens(c)
		RespondError(c, http.StatusUnauthorized, "session expired", gin.H{"code": apiclient.CodeAuthExpired})
		return
	}

	h.cookies.SetTokens(c, next.AccessToken, next.RefreshToken)
	RespondSuccess(c, http.StatusOK, nil, "refreshed")
}

// Logout always clears the cookies, even if the backend call fails.
func (h *AuthHandler) Logout(c *gin.Context) {
	if refresh := cookieValue(c, session.RefreshTokenCookie); refresh != "" {
		if err := h.auth.Logout(c.Request.Context(), session.KeyFor(refresh)); err != nil {
			h.logger.WarnTag("AUTH", "logout: %v", err)
		}
	}
	h.cookies.ClearTokens(c)
	RespondSuccess(c, http.StatusOK, nil, "logged out")
}

func message(err error, fallback string) string {
	var apiErr *apiclient.Error
	if stderrors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
