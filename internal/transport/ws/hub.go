package ws

import (
	"sync"

	"ambrosia-pos-gateway/internal/platform/logging"
)

// Hub tracks the active websocket sessions of one endpoint.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // map[string]*Session
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// Each calls fn for every session until fn returns false.
func (h *Hub) Each(fn func(*Session) bool) {
	h.sessions.Range(func(_, value any) bool {
		if session, ok := value.(*Session); ok {
			return fn(session)
		}
		return true
	})
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Count returns the number of active sessions.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
