package ws

import (
	"time"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/platform/logging"
)

// Config stores the settings of the websocket endpoints.
type Config struct {
	// BackendURL is the backend websocket. Empty disables the bridge.
	BackendURL       string
	HandshakeTimeout time.Duration
}

// Server owns the bridge and the events stream and their hubs.
type Server struct {
	bridgeHub *Hub
	eventsHub *Hub
	bridge    *Router
	events    *Router
	stream    *Events
	logger    *logging.Logger
}

// NewServer wires both endpoints. bus may be nil, in which case the events
// stream is not served.
func NewServer(cfg Config, bus Subscriber, logger *logging.Logger) (*Server, error) {
	s := &Server{logger: logger}

	if cfg.BackendURL != "" {
		bridge, err := NewBridge(cfg.BackendURL, cfg.HandshakeTimeout, logger)
		if err != nil {
			return nil, err
		}
		s.bridgeHub = NewHub(logger)
		s.bridge = NewRouter(s.bridgeHub, logger, RouterOptions{Name: "bridge", HandshakeTimeout: cfg.HandshakeTimeout})
		s.bridge.SetHandlerBuilder(bridge.Build)
	}

	if bus != nil {
		s.eventsHub = NewHub(logger)
		s.stream = NewEvents(s.eventsHub, bus, logger)
		if err := s.stream.Start(); err != nil {
			return nil, err
		}
		s.events = NewRouter(s.eventsHub, logger, RouterOptions{Name: "events", HandshakeTimeout: cfg.HandshakeTimeout})
		s.events.SetHandlerBuilder(s.stream.Build)
	}
	return s, nil
}

// RegisterRoutes mounts the endpoints on engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	if s.bridge != nil {
		handler := gin.WrapF(s.bridge.Handle)
		engine.GET(BridgePath, handler)
		engine.GET(BridgePath+"/*path", handler)
	}
	if s.events != nil {
		engine.GET(EventsPath, gin.WrapF(s.events.Handle))
	}
}

// Stop closes every session and detaches from the bus.
func (s *Server) Stop() {
	if s.stream != nil {
		s.stream.Stop()
	}
	for _, hub := range []*Hub{s.bridgeHub, s.eventsHub} {
		if hub != nil {
			hub.CloseAll(ErrSessionShutdown)
		}
	}
	s.logger.InfoTag("WebSocket", "websocket sessions closed")
}

// Counts returns active bridge and events connections.
func (s *Server) Counts() (bridged int, streams int) {
	if s.bridgeHub != nil {
		bridged = s.bridgeHub.Count()
	}
	if s.eventsHub != nil {
		streams = s.eventsHub.Count()
	}
	return bridged, streams
}
