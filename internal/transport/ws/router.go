package ws

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
)

// HandlerBuilder creates a session handler for an upgraded websocket connection.
type HandlerBuilder func(conn *Connection, req *http.Request) (SessionHandler, error)

// Router upgrades HTTP connections to websocket sessions.
type Router struct {
	name   string
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // HandlerBuilder
}

type RouterOptions struct {
	// Name labels metrics and logs, for example "bridge".
	Name             string
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	upgrader.HandshakeTimeout = timeout

	name := opts.Name
	if name == "" {
		name = "websocket"
	}

	return &Router{
		name:             name,
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
	}
}

// SetHandlerBuilder registers the handler builder that will be invoked after a successful upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

func (r *Router) Hub() *Hub { return r.hub }

// Handle upgrades the HTTP connection and launches a new websocket session.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", r.name)
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	labels := map[string]string{"endpoint": r.name}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.upgrade.error", 1, labels)
		r.logger.ErrorTag("WebSocket", "%s handshake failed: %v", r.name, err)
		return
	}

	wsConn := NewConnection(uuid.NewString(), conn)
	sessionKey := sessionKeyFrom(req)
	observability.RecordMetric(spanCtx, "websocket.upgrade.success", 1, labels)

	handler, err := builder(wsConn, req)
	if err != nil || handler == nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.connection.error", 1, labels)
		r.logger.ErrorTag("WebSocket", "%s handler setup failed: %v", r.name, err)
		wsConn.WriteClose(websocket.CloseTryAgainLater, "upstream unavailable")
		_ = wsConn.Close()
		return
	}

	// the session outlives the handshake and the http handler
	s := NewSession(context.WithoutCancel(spanCtx), sessionKey, handler, wsConn, r.logger)
	r.hub.Register(s)
	r.logger.InfoTag("WebSocket", "%s connected id=%s", r.name, s.ID())
	observability.RecordMetric(spanCtx, "websocket.connection.opened", 1, labels)

	go s.Run(func(runErr error) {
		r.hub.Unregister(s.ID())
		if runErr != nil && !isNormalClose(runErr) {
			r.logger.WarnTag("WebSocket", "%s session %s ended: %v", r.name, s.ID(), runErr)
		}
		observability.RecordMetric(s.Context(), "websocket.connection.closed", 1, labels)
	})
}

func sessionKeyFrom(req *http.Request) string {
	c, err := req.Cookie(session.RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return session.KeyFor(c.Value)
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, ErrSessionShutdown) || errors.Is(err, ErrUpstreamClosed)
}
