package ws

import (
	"context"
	"sync/atomic"
	"time"

	"ambrosia-pos-gateway/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// SessionHandler drives one upgraded connection. Handle returns when the
// connection is done; Close must make a running Handle return.
type SessionHandler interface {
	Handle(ctx context.Context) error
	Close()
}

// Session encapsulates the lifecycle of a single websocket connection.
type Session struct {
	id         string
	sessionKey string
	handler    SessionHandler
	conn       *Connection
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession constructs a managed websocket session. sessionKey is the
// browser session the connection belongs to and may be empty.
func NewSession(parent context.Context, sessionKey string, handler SessionHandler, conn *Connection, logger *logging.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:         conn.ID(),
		sessionKey: sessionKey,
		handler:    handler,
		conn:       conn,
		logger:     logger,
		ctx:        sessionCtx,
		cancel:     cancel,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SessionKey() string {
	return s.sessionKey
}

func (s *Session) Handler() SessionHandler {
	return s.handler
}

// Run executes the session handler and invokes onDone once exiting.
func (s *Session) Run(onDone func(error)) {
	runErr := s.handler.Handle(s.ctx)
	s.Close(runErr)
	if onDone != nil {
		onDone(runErr)
	}
}

// Close attempts to gracefully terminate the session.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if s.cancel != nil {
		s.cancel(reason)
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, reason)
	defer cancel()

	if s.handler != nil {
		done := make(chan struct{})
		go func() {
			s.handler.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.logger.WarnTag("WebSocket", "session %s handler close timed out: %v", s.id, context.Cause(shutdownCtx))
		}
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.DebugTag("WebSocket", "session %s connection close: %v", s.id, err)
		}
	}
}
