package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"ambrosia-pos-gateway/internal/domain/eventbus"
	"ambrosia-pos-gateway/internal/platform/logging"
)

// EventsPath streams gateway notifications to the browser.
const EventsPath = "/_ambrosia/events"

// Subscriber is the part of the event bus the stream listens on.
type Subscriber interface {
	Subscribe(topic string, fn any) error
	Unsubscribe(topic string, fn any) error
}

// Envelope is one frame on the events stream.
type Envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Events forwards bus events to connected browsers. Events carrying a session
// key go only to that browser's connections.
type Events struct {
	hub    *Hub
	bus    Subscriber
	logger *logging.Logger
	buffer int

	mu       sync.Mutex
	handlers []func()
}

func NewEvents(hub *Hub, bus Subscriber, logger *logging.Logger) *Events {
	return &Events{hub: hub, bus: bus, logger: logger, buffer: 32}
}

// Start subscribes to the bus. Stop undoes it.
func (e *Events) Start() error {
	toast := func(ev eventbus.ToastEvent) { e.dispatch(eventbus.TopicToast, ev.SessionKey, ev) }
	if err := e.subscribe(eventbus.TopicToast, toast); err != nil {
		return err
	}
	for _, topic := range []string{eventbus.TopicAuthUnauthorized, eventbus.TopicWalletUnauthorized} {
		topic := topic
		fn := func(ev eventbus.UnauthorizedEvent) { e.dispatch(topic, ev.SessionKey, ev) }
		if err := e.subscribe(topic, fn); err != nil {
			return err
		}
	}
	for _, topic := range []string{eventbus.TopicSessionExpired, eventbus.TopicSessionRefreshed} {
		topic := topic
		fn := func(ev eventbus.SessionEvent) { e.dispatch(topic, ev.SessionKey, ev) }
		if err := e.subscribe(topic, fn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Events) subscribe(topic string, fn any) error {
	if err := e.bus.Subscribe(topic, fn); err != nil {
		return err
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, func() { _ = e.bus.Unsubscribe(topic, fn) })
	e.mu.Unlock()
	return nil
}

func (e *Events) Stop() {
	e.mu.Lock()
	handlers := e.handlers
	e.handlers = nil
	e.mu.Unlock()
	for _, undo := range handlers {
		undo()
	}
}

func (e *Events) dispatch(topic, sessionKey string, payload any) {
	frame, err := sonic.Marshal(Envelope{Topic: topic, Payload: payload})
	if err != nil {
		e.logger.WarnTag("WebSocket", "encode %s: %v", topic, err)
		return
	}
	e.hub.Each(func(s *Session) bool {
		if sessionKey != "" && s.SessionKey() != sessionKey {
			return true
		}
		if h, ok := s.Handler().(*eventsHandler); ok {
			h.enqueue(frame)
		}
		return true
	})
}

// Build creates the per-connection handler.
func (e *Events) Build(conn *Connection, _ *http.Request) (SessionHandler, error) {
	return &eventsHandler{
		conn:   conn,
		send:   make(chan []byte, e.buffer),
		done:   make(chan struct{}),
		logger: e.logger,
	}, nil
}

type eventsHandler struct {
	conn   *Connection
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *logging.Logger
}

// enqueue drops the frame when the client is not keeping up.
func (h *eventsHandler) enqueue(frame []byte) {
	select {
	case h.send <- frame:
	case <-h.done:
	default:
		h.logger.DebugTag("WebSocket", "events %s: slow client, frame dropped", h.conn.ID())
	}
}

func (h *eventsHandler) Handle(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() {
		// inbound frames are ignored; reading surfaces the close
		for {
			if _, _, err := h.conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-h.done:
			return nil
		case err := <-readErr:
			return err
		case frame := <-h.send:
			if err := h.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ping.C:
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (h *eventsHandler) Close() {
	h.once.Do(func() {
		close(h.done)
		_ = h.conn.Close()
	})
}
