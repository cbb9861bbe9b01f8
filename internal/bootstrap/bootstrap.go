package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/domain/eventbus"
	"ambrosia-pos-gateway/internal/domain/gatekeeper"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/domain/pages"
	"ambrosia-pos-gateway/internal/domain/reports"
	"ambrosia-pos-gateway/internal/domain/session/store"
	"ambrosia-pos-gateway/internal/platform/config"
	"ambrosia-pos-gateway/internal/platform/errors"
	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
	"ambrosia-pos-gateway/internal/platform/storage"
	httptransport "ambrosia-pos-gateway/internal/transport/http"
	"ambrosia-pos-gateway/internal/transport/ws"
)

// Version is stamped at build time with -ldflags "-X ...bootstrap.Version=...".
var Version = "dev"

const (
	shutdownGrace   = 15 * time.Second
	busDrainTimeout = 2 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

type appState struct {
	loader     *config.Loader
	config     *config.Config
	configPath string
	logger     *logging.Logger

	observabilityShutdown observability.ShutdownFunc

	db       *gorm.DB
	sessions store.Store
	bus      *eventbus.Bus
	backend  *backend.Client
	gate     *gatekeeper.Gatekeeper
	pages    *pages.Loader
	registry *modules.Registry
	reports  *reports.Service

	router   *httptransport.Router
	wsServer *ws.Server
}

// Run loads configuration, wires every component and serves until ctx is
// canceled or the process receives SIGINT or SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{loader: config.NewLoader()}
	defer state.close()

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}
	logBootstrapGraph(steps, state.logger)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	if err := startHTTPServer(state, group, groupCtx); err != nil {
		return err
	}

	return waitForShutdown(groupCtx, state.logger, group)
}

func logBootstrapGraph(steps []initStep, logger *logging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "  %s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "  %s (%s) <- %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return errors.New(errors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(errors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open gateway database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      errors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "session:init-store",
			Title:     "Initialise session store",
			DependsOn: []string{"storage:open-database"},
			Kind:      errors.KindStorage,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Start event bus",
			DependsOn: []string{"storage:open-database"},
			Execute:   initEventBusStep,
		},
		{
			ID:        "backend:init-client",
			Title:     "Initialise backend client",
			DependsOn: []string{"session:init-store", "events:init-bus"},
			Kind:      errors.KindBackend,
			Execute:   initBackendStep,
		},
		{
			ID:        "gatekeeper:init",
			Title:     "Initialise gatekeeper",
			DependsOn: []string{"backend:init-client"},
			Execute:   initGatekeeperStep,
		},
		{
			ID:        "pages:init-catalog",
			Title:     "Load module registry and page catalog",
			DependsOn: []string{"logging:init-provider"},
			Kind:      errors.KindResolution,
			Execute:   initPagesStep,
		},
		{
			ID:        "reports:init-service",
			Title:     "Initialise reports service",
			DependsOn: []string{"backend:init-client"},
			Kind:      errors.KindReport,
			Execute:   initReportsStep,
		},
		{
			ID:    "http:build-router",
			Title: "Build HTTP router",
			DependsOn: []string{
				"observability:setup-hooks",
				"gatekeeper:init",
				"pages:init-catalog",
				"reports:init-service",
			},
			Kind:    errors.KindTransport,
			Execute: buildRouterStep,
		},
		{
			ID:        "ws:init-server",
			Title:     "Mount websocket endpoints",
			DependsOn: []string{"http:build-router"},
			Kind:      errors.KindTransport,
			Execute:   initWebsocketStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	if state.loader == nil {
		state.loader = config.NewLoader()
	}
	result, err := state.loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return errors.New(errors.KindBootstrap, "logging:init-provider", "config not loaded")
	}
	logger, err := logging.New(logging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := observability.Config{
		Enabled: state.config.Observability.Enabled || strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := observability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

// openDatabaseStep opens sqlite for the audit log and, with the sqlite
// driver, for sessions. An empty dsn disables both.
func openDatabaseStep(_ context.Context, state *appState) error {
	dsn := state.config.Session.SQLite.DSN
	if dsn == "" {
		if strings.EqualFold(state.config.Session.Driver, store.DriverSQLite) {
			return errors.New(errors.KindStorage, "storage:open-database", "session.sqlite.dsn is required for the sqlite driver")
		}
		state.logger.WarnTag("BOOT", "no sqlite dsn, audit log disabled")
		return nil
	}
	db, err := storage.Open(dsn)
	if err != nil {
		return err
	}
	state.db = db
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	cfg := state.config.Session
	storeCfg := store.Config{
		Driver:    strings.ToLower(cfg.Driver),
		TTL:       cfg.TTL,
		Namespace: cfg.Namespace,
		Memory:    &store.MemoryConfig{GCInterval: cfg.Cleanup},
	}
	if storeCfg.Driver == store.DriverRedis {
		storeCfg.Redis = &store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}

	sessions, err := store.New(storeCfg, store.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "session:init-store", "failed to create session store", err)
	}
	state.sessions = sessions
	state.logger.InfoTag("BOOT", "session store ready driver=%s ttl=%s", storeCfg.Driver, cfg.TTL)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.New(0, 0, state.logger)
	bus.Start()

	var recorder eventbus.Recorder
	if state.db != nil {
		recorder = storage.NewAuditLog(state.db)
	}
	if err := eventbus.RegisterAuditHandlers(bus, recorder, state.logger); err != nil {
		bus.Stop()
		return errors.Wrap(errors.KindBootstrap, "events:init-bus", "failed to register audit handlers", err)
	}
	state.bus = bus
	return nil
}

func initBackendStep(_ context.Context, state *appState) error {
	cfg := state.config.Backend
	api, err := apiclient.New(apiclient.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout}, apiclient.Dependencies{
		Sessions:  state.sessions,
		Refresher: apiclient.NewRefreshCoordinator(cfg.Timeout),
		Publisher: state.bus.Async(),
		Logger:    state.logger,
	})
	if err != nil {
		return errors.Wrap(errors.KindBackend, "backend:init-client", "failed to create api client", err)
	}
	state.backend = backend.New(api)
	state.logger.InfoTag("BOOT", "backend %s (ws %s)", cfg.APIURL, cfg.WSURL)
	return nil
}

func initGatekeeperStep(_ context.Context, state *appState) error {
	cfg := state.config.Gatekeeper
	paths := gatekeeper.Paths{
		Home:        cfg.HomePath,
		Auth:        cfg.AuthPath,
		Onboarding:  cfg.OnboardingPath,
		PassThrough: append(append([]string{}, gatekeeper.DefaultPassThrough...), cfg.PassThrough...),
	}
	state.gate = gatekeeper.New(state.backend, gatekeeper.Options{Paths: paths, Timeout: cfg.Timeout}, state.logger)
	return nil
}

func initPagesStep(_ context.Context, state *appState) error {
	catalog, err := pages.DefaultCatalog()
	if err != nil {
		return errors.Wrap(errors.KindResolution, "pages:init-catalog", "failed to build page catalog", err)
	}
	registry := modules.DefaultRegistry()
	if err := catalog.Verify(registry); err != nil {
		return errors.Wrap(errors.KindResolution, "pages:init-catalog", "page catalog does not cover every route", err)
	}
	state.registry = registry
	state.pages = pages.NewLoader(catalog)
	return nil
}

func initReportsStep(_ context.Context, state *appState) error {
	policy := reports.PolicyFail
	if state.config.Reports.MissingPayment == config.MissingPaymentSkip {
		policy = reports.PolicySkip
	}
	state.reports = reports.NewService(state.backend, reports.Options{
		Location: state.config.Reports.Location(),
		Policy:   policy,
	}, state.logger)
	return nil
}

func (s *appState) cookiePolicy() httptransport.CookiePolicy {
	return httptransport.CookiePolicy{
		Secure:   s.config.Server.SecureCookies && !s.config.Electron,
		Fallback: s.config.Session.TTL,
	}
}

func buildRouterStep(_ context.Context, state *appState) error {
	router, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
		Middleware: []gin.HandlerFunc{
			httptransport.GateMiddleware(state.gate),
			httptransport.SessionMiddleware(state.sessions, state.logger),
		},
	})
	if err != nil {
		return err
	}

	proxy, err := httptransport.NewProxy(state.config.Backend.APIURL, nil, state.logger)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "http:build-router", "failed to create api proxy", err)
	}

	cookies := state.cookiePolicy()
	proxy.RegisterRoutes(router)
	httptransport.NewAuthHandler(state.backend, state.sessions, cookies, state.logger).RegisterRoutes(router)
	httptransport.NewReportsHandler(state.reports, state.sessions, cookies, state.logger).RegisterRoutes(router)
	health := httptransport.NewHealthHandler(Version, state.sessions).WithSource("events", state.bus)
	if state.db != nil {
		health.WithSource("audit", storage.NewAuditLog(state.db))
	}
	health.RegisterRoutes(router)
	httptransport.NewPageHandler(state.registry, state.pages, state.backend, state.sessions, httptransport.PageOptions{
		Title:        state.config.Web.Title,
		BundleURL:    state.config.Web.BundleURL,
		OpenTurnPath: state.config.Gatekeeper.OpenTurnPath,
		Cookies:      cookies,
	}, state.logger).RegisterRoutes(router)

	state.router = router
	return nil
}

func initWebsocketStep(_ context.Context, state *appState) error {
	server, err := ws.NewServer(ws.Config{
		BackendURL:       state.config.Backend.WSURL,
		HandshakeTimeout: state.config.Backend.Timeout,
	}, state.bus, state.logger)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "ws:init-server", "failed to create websocket server", err)
	}
	server.RegisterRoutes(state.router.Engine)
	state.wsServer = server
	return nil
}

// listenAddr pins the desktop shell to loopback.
func listenAddr(cfg *config.Config) string {
	ip := cfg.Server.IP
	if cfg.Electron {
		ip = "127.0.0.1"
	}
	return net.JoinHostPort(ip, strconv.Itoa(cfg.Server.Port))
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if state.router == nil {
		return errors.New(errors.KindBootstrap, "http:start", "router not built")
	}
	logger := state.logger
	httpServer := &http.Server{
		Addr:              listenAddr(state.config),
		Handler:           state.router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "http:start", "listen "+httpServer.Addr, err)
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "gateway listening on http://%s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		timeout := state.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if state.wsServer != nil {
			state.wsServer.Stop()
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorTag("HTTP", "graceful shutdown failed: %v", err)
			return err
		}
		logger.InfoTag("HTTP", "server stopped")
		return nil
	})
	return nil
}

func waitForShutdown(ctx context.Context, logger *logging.Logger, g *errgroup.Group) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
		return nil
	case <-time.After(shutdownGrace):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return errors.New(errors.KindBootstrap, "shutdown", "timed out waiting for services")
	}
}

// close releases everything the init steps opened, in reverse order.
func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.bus != nil {
		s.bus.Drain(busDrainTimeout)
	}
	if s.sessions != nil {
		if err := s.sessions.Close(ctx); err != nil {
			s.logger.WarnTag("BOOT", "session store close: %v", err)
		}
	}
	if s.db != nil {
		if err := storage.Close(s.db); err != nil {
			s.logger.WarnTag("BOOT", "database close: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("BOOT", "observability shutdown: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
