package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/gatekeeper"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/domain/pages"
	"ambrosia-pos-gateway/internal/domain/reports"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/domain/session/store"
	platformtesting "ambrosia-pos-gateway/internal/platform/testing"
)

type fakeBackend struct {
	initialized  atomic.Bool
	businessType atomic.Value
	shiftOpen    atomic.Bool
	setupCalls   atomic.Int32
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{}
	b.initialized.Store(true)
	b.businessType.Store("store")
	b.shiftOpen.Store(true)
	return b
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/initial-setup", func(w http.ResponseWriter, r *http.Request) {
		b.setupCalls.Add(1)
		if b.initialized.Load() {
			reply(w, http.StatusOK, `{"initialized":true,"needsBusinessType":false}`)
			return
		}
		reply(w, http.StatusOK, `{"initialized":false,"needsBusinessType":true}`)
	})
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `{"businessType":"`+b.businessType.Load().(string)+`"}`)
	})
	mux.HandleFunc("/shifts/open", func(w http.ResponseWriter, r *http.Request) {
		if b.shiftOpen.Load() {
			reply(w, http.StatusOK, `{"id":"s1","user_id":"u1"}`)
			return
		}
		reply(w, http.StatusNotFound, `{"message":"no open shift"}`)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["pin"] != "1234" {
			reply(w, http.StatusUnauthorized, `{"message":"Invalid PIN"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: session.AccessTokenCookie, Value: "acc"})
		http.SetCookie(w, &http.Cookie{Name: session.RefreshTokenCookie, Value: "ref"})
		reply(w, http.StatusOK, `{"user":{"name":"Ana"}}`)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[{"id":"p1","name":"Coffee","price":2.5}]`)
	})
	mux.HandleFunc("/tickets", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[{"id":"t1","order_id":"o1","amount":12,"created_at":"2026-03-02T10:00:00Z"},{"id":"t2","order_id":"o1","amount":8,"created_at":"2026-03-02T11:00:00Z"}]`)
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[{"id":"o1","waiter":"Ana"}]`)
	})
	mux.HandleFunc("/payments", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[{"id":"p1","ticket_id":"t1","method_id":"cash"},{"id":"p2","ticket_id":"t2","method_id":"cash"}]`)
	})
	mux.HandleFunc("/payment-methods", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[{"id":"cash","name":"Cash"}]`)
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `[]`)
	})
	return mux
}

type stack struct {
	router   *Router
	backend  *fakeBackend
	sessions store.Store
}

type stackOption func(*stackParts)

type stackParts struct {
	registry *modules.Registry
	renderer Renderer
}

func newStack(t *testing.T, opts ...stackOption) *stack {
	t.Helper()
	fb := newFakeBackend()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	cfg := platformtesting.SetupTestConfig(t, srv.URL)
	logger := platformtesting.SetupTestLogger(t)

	sessions := store.NewMemory(store.Config{TTL: time.Hour})
	t.Cleanup(func() { _ = sessions.Close(context.Background()) })

	api, err := apiclient.New(apiclient.Config{BaseURL: srv.URL, Timeout: cfg.Backend.Timeout}, apiclient.Dependencies{
		Sessions: sessions,
		Logger:   logger,
	})
	require.NoError(t, err)
	be := backend.New(api)

	parts := &stackParts{
		registry: modules.DefaultRegistry(),
		renderer: pages.NewLoader(pages.MustDefaultCatalog()),
	}
	for _, o := range opts {
		o(parts)
	}

	gate := gatekeeper.New(be, gatekeeper.Options{Timeout: cfg.Gatekeeper.Timeout}, logger)
	router, err := Build(Options{
		Config: cfg,
		Logger: logger,
		Middleware: []gin.HandlerFunc{
			GateMiddleware(gate),
			SessionMiddleware(sessions, logger),
		},
	})
	require.NoError(t, err)

	cookies := CookiePolicy{Secure: true, Fallback: time.Hour}
	proxy, err := NewProxy(srv.URL, nil, logger)
	require.NoError(t, err)
	proxy.RegisterRoutes(router)
	NewAuthHandler(be, sessions, cookies, logger).RegisterRoutes(router)
	NewReportsHandler(reports.NewService(be, reports.Options{Location: time.UTC}, logger), sessions, cookies, logger).RegisterRoutes(router)
	NewHealthHandler("test", sessions).RegisterRoutes(router)
	NewPageHandler(parts.registry, parts.renderer, be, sessions, PageOptions{BundleURL: "/static/app.js", Cookies: cookies}, logger).RegisterRoutes(router)

	return &stack{router: router, backend: fb, sessions: sessions}
}

func (s *stack) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

var signedIn = &http.Cookie{Name: session.RefreshTokenCookie, Value: "r1"}

func setCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGateRedirectsUnauthenticated(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/auth", w.Header().Get("Location"))
}

func TestGateRedirectsToOnboarding(t *testing.T) {
	s := newStack(t)
	s.backend.initialized.Store(false)

	w := s.do(http.MethodGet, "/", "", signedIn)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/onboarding", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateOnboardingFinished(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/onboarding", "", signedIn)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/onboarding", "")
	assert.Equal(t, "/auth", w.Header().Get("Location"))
}

func TestLoginPageRedirectsWhenSignedIn(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/auth", "", signedIn)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/auth", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pages/auth/Login")
}

func TestPageRendersWithParams(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/store/orders/42", "", signedIn)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "store", w.Header().Get(gatekeeper.BusinessTypeHeader))
	bt := setCookie(w, gatekeeper.BusinessTypeCookie)
	require.NotNil(t, bt)
	assert.Equal(t, "store", bt.Value)
	assert.Equal(t, "/", bt.Path)

	body := w.Body.String()
	assert.Contains(t, body, "pages/store/OrderDetail")
	assert.Contains(t, body, `"id":"42"`)
	assert.Contains(t, body, "Loading...")
	assert.Contains(t, body, "<title>Order | Ambrosia</title>")
}

func TestRouteForOtherBusinessTypeIs404(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/spaces", "", signedIn)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.backend.businessType.Store("restaurant")
	w = s.do(http.MethodGet, "/spaces", "", signedIn)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidBusinessTypeClearsCookie(t *testing.T) {
	s := newStack(t)
	s.backend.businessType.Store("bakery")

	w := s.do(http.MethodGet, "/", "", signedIn, &http.Cookie{Name: gatekeeper.BusinessTypeCookie, Value: "store"})
	require.Equal(t, http.StatusOK, w.Code)
	bt := setCookie(w, gatekeeper.BusinessTypeCookie)
	require.NotNil(t, bt)
	assert.Equal(t, "", bt.Value)
	assert.Less(t, bt.MaxAge, 0)
	assert.Empty(t, w.Header().Get(gatekeeper.BusinessTypeHeader))
}

func TestOpenTurnGuard(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/store/checkout", "", signedIn)
	assert.Equal(t, http.StatusOK, w.Code)

	s.backend.shiftOpen.Store(false)
	w = s.do(http.MethodGet, "/store/checkout", "", signedIn)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/shifts/open-turn", w.Header().Get("Location"))
}

func TestProxyStripsPrefixAndSkipsGate(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Coffee")
	assert.Zero(t, s.backend.setupCalls.Load())
}

func TestLoginSetsCookies(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodPost, "/_ambrosia/auth/login", `{"name":"Ana","pin":"1234"}`)
	require.Equal(t, http.StatusOK, w.Code)

	for _, name := range []string{session.AccessTokenCookie, session.RefreshTokenCookie} {
		c := setCookie(w, name)
		require.NotNil(t, c, name)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, 3600, c.MaxAge)
	}

	stored, err := s.sessions.Get(context.Background(), session.KeyFor("ref"))
	require.NoError(t, err)
	assert.Equal(t, "acc", stored.AccessToken)
}

func TestLoginRejected(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodPost, "/_ambrosia/auth/login", `{"name":"Ana","pin":"0000"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid PIN")
}

func TestLogoutClearsCookies(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodPost, "/_ambrosia/auth/logout", "", signedIn)
	require.Equal(t, http.StatusOK, w.Code)
	c := setCookie(w, session.RefreshTokenCookie)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)

	_, err := s.sessions.Get(context.Background(), session.KeyFor("r1"))
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDailyReportEndpoint(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/_ambrosia/reports/daily?start=2026-03-01&end=2026-03-03", "", signedIn)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    reports.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 20.0, resp.Data.TotalBalance)
	require.Len(t, resp.Data.Reports, 1)
	assert.Equal(t, "02/03/2026", resp.Data.Reports[0].Date)
	assert.Len(t, resp.Data.Reports[0].Tickets, 2)
}

func TestDailyReportBadRange(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/_ambrosia/reports/daily?start=2026-03-05&end=2026-03-01", "", signedIn)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/_ambrosia/reports/daily", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodGet, "/_ambrosia/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

type rangeRecorder struct {
	*reports.Service
	start string
}

func (r *rangeRecorder) ParseRange(start, end string) (time.Time, time.Time, error) {
	r.start = start
	return r.Service.ParseRange(start, end)
}

func TestDailyReportDefaultsToTodayInReportZone(t *testing.T) {
	// 22:30 UTC on March 2nd is already March 3rd at UTC+3
	loc := time.FixedZone("UTC+3", 3*60*60)
	fb := newFakeBackend()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	api, err := apiclient.New(apiclient.Config{BaseURL: srv.URL}, apiclient.Dependencies{})
	require.NoError(t, err)

	rec := &rangeRecorder{Service: reports.NewService(backend.New(api), reports.Options{Location: loc}, nil)}
	sessions := store.NewMemory(store.Config{TTL: time.Hour})
	t.Cleanup(func() { _ = sessions.Close(context.Background()) })
	h := NewReportsHandler(rec, sessions, CookiePolicy{}, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC) }

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) { c.Set(sessionKeyKey, "k") })
	h.RegisterRoutes(&Router{Engine: engine, Gateway: engine.Group(GatewayPrefix)})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_ambrosia/reports/daily", nil))
	assert.Equal(t, "2026-03-03", rec.start)
}

type staticStats struct {
	stats map[string]any
	err   error
}

func (s staticStats) Stats(context.Context) (map[string]any, error) { return s.stats, s.err }

func TestHealthExtraSources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	router := &Router{Engine: engine, Gateway: engine.Group(GatewayPrefix)}
	NewHealthHandler("test", nil).
		WithSource("events", staticStats{stats: map[string]any{"dropped": 0}}).
		WithSource("audit", staticStats{err: assert.AnError}).
		WithSource("skipped", nil).
		RegisterRoutes(router)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_ambrosia/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"degraded"`)
	assert.Contains(t, body, `"events":{"dropped":0}`)
	assert.Contains(t, body, assert.AnError.Error())
	assert.NotContains(t, body, `"skipped"`)
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, pages.ComponentKey, pages.Props) (*pages.View, error) {
	return nil, &pages.ResolutionError{}
}

func TestResolutionErrorRendersErrorPage(t *testing.T) {
	s := newStack(t, func(p *stackParts) { p.renderer = failingRenderer{} })
	w := s.do(http.MethodGet, "/", "", signedIn)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Something went wrong")
}

func TestNonGetUnknownPathIs404(t *testing.T) {
	s := newStack(t)
	w := s.do(http.MethodPost, "/store", "{}", signedIn)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
