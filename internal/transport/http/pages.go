package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/domain/pages"
	"ambrosia-pos-gateway/internal/platform/logging"
)

// Renderer renders a component key. *pages.Loader implements it.
type Renderer interface {
	Render(ctx context.Context, key pages.ComponentKey, props pages.Props) (*pages.View, error)
}

// ShiftChecker reports the open shift of a session.
type ShiftChecker interface {
	OpenShift(ctx context.Context, sessionKey string) (*backend.Shift, error)
}

type PageOptions struct {
	Title          string
	BundleURL      string
	OpenTurnPath   string
	LoadingMessage string
	Cookies        CookiePolicy
}

// PageHandler serves every path no other route claims.
type PageHandler struct {
	registry *modules.Registry
	renderer Renderer
	shifts   ShiftChecker
	store    SessionStore
	opts     PageOptions
	logger   *logging.Logger
}

func NewPageHandler(registry *modules.Registry, renderer Renderer, shifts ShiftChecker, store SessionStore, opts PageOptions, logger *logging.Logger) *PageHandler {
	if opts.Title == "" {
		opts.Title = "Ambrosia"
	}
	if opts.LoadingMessage == "" {
		opts.LoadingMessage = "Loading..."
	}
	if opts.OpenTurnPath == "" {
		opts.OpenTurnPath = "/shifts/open-turn"
	}
	return &PageHandler{
		registry: registry,
		renderer: renderer,
		shifts:   shifts,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

func (h *PageHandler) RegisterRoutes(router *Router) {
	router.Engine.SetHTMLTemplate(parseShell())
	router.Engine.NoRoute(h.Serve)
}

type shellData struct {
	Title     string
	BundleURL string
	View      *pages.View
	State     map[string]any
}

type errorData struct {
	Title   string
	Status  int
	Message string
}

func (h *PageHandler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		RespondError(c, http.StatusNotFound, "not found", nil)
		return
	}

	rc := RequestContext(c)
	path := modules.NormalizePath(c.Request.URL.Path)
	resolved, ok := h.registry.FindRouteConfig(path, rc.BusinessType)
	if !ok {
		h.renderError(c, http.StatusNotFound, "This page does not exist.")
		return
	}

	if resolved.Route.RequiresOpenTurn && path != h.opts.OpenTurnPath && h.needsOpenTurn(c) {
		c.Redirect(http.StatusTemporaryRedirect, h.opts.OpenTurnPath)
		c.Abort()
		return
	}

	title := h.opts.Title
	if t := resolved.Title(); t != "" {
		title = t + " | " + h.opts.Title
	}

	query := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	key := pages.KeyFor(resolved, h.opts.LoadingMessage)
	view, err := h.renderer.Render(c.Request.Context(), key, pages.Props{
		Title:        resolved.Title(),
		Params:       resolved.Params,
		BusinessType: rc.BusinessType,
		Query:        query,
	})
	if err != nil {
		h.logger.ErrorTag("PAGES", "render %s for %s: %v", key, path, err)
		_ = c.Error(err)
		h.renderError(c, http.StatusInternalServerError, "Something went wrong while loading this page.")
		return
	}

	syncTokens(c, h.store, h.opts.Cookies)
	c.HTML(http.StatusOK, "shell", shellData{
		Title:     title,
		BundleURL: h.opts.BundleURL,
		View:      view,
		State: map[string]any{
			"componentId":  view.ComponentID,
			"component":    view.Name,
			"module":       resolved.Module.Key,
			"params":       view.Params,
			"props":        view.Props,
			"businessType": string(rc.BusinessType),
		},
	})
}

// needsOpenTurn is true only when the backend positively reports no open
// shift. Lookup failures let the page through.
func (h *PageHandler) needsOpenTurn(c *gin.Context) bool {
	key := SessionKey(c)
	if key == "" || h.shifts == nil {
		return false
	}
	shift, err := h.shifts.OpenShift(c.Request.Context(), key)
	if err != nil {
		h.logger.WarnTag("PAGES", "open shift check failed: %v", err)
		return false
	}
	return shift == nil
}

func (h *PageHandler) renderError(c *gin.Context, status int, msg string) {
	c.HTML(status, "error", errorData{
		Title:   http.StatusText(status) + " | " + h.opts.Title,
		Status:  status,
		Message: msg,
	})
	c.Abort()
}
