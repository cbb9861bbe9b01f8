package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ambrosia-pos-gateway/internal/platform/logging"
)

// BridgePath is where browsers open the backend websocket.
const BridgePath = "/ws"

// Bridge relays browser websocket connections to the backend websocket.
type Bridge struct {
	target *url.URL
	dialer *websocket.Dialer
	logger *logging.Logger
}

func NewBridge(wsURL string, dialTimeout time.Duration, logger *logging.Logger) (*Bridge, error) {
	target, err := url.Parse(wsURL)
	if err != nil || (target.Scheme != "ws" && target.Scheme != "wss") || target.Host == "" {
		return nil, fmt.Errorf("bridge: invalid websocket url %q", wsURL)
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Bridge{
		target: target,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger,
	}, nil
}

// upstreamURL maps /ws/<rest>?q onto the backend url with <rest> appended.
func (b *Bridge) upstreamURL(req *http.Request) string {
	u := *b.target
	rest := strings.TrimPrefix(req.URL.Path, BridgePath)
	if rest != "" && rest != "/" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rest, "/")
	}
	if req.URL.RawQuery != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + req.URL.RawQuery
		} else {
			u.RawQuery = req.URL.RawQuery
		}
	}
	return u.String()
}

// Build dials the backend for an upgraded browser connection.
func (b *Bridge) Build(conn *Connection, req *http.Request) (SessionHandler, error) {
	header := http.Header{}
	if cookie := req.Header.Get("Cookie"); cookie != "" {
		header.Set("Cookie", cookie)
	}
	if auth := req.Header.Get("Authorization"); auth != "" {
		header.Set("Authorization", auth)
	}

	target := b.upstreamURL(req)
	upstream, resp, err := b.dialer.DialContext(req.Context(), target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &bridgeHandler{
		client:   conn,
		upstream: NewConnection(conn.ID()+"-upstream", upstream),
		logger:   b.logger,
	}, nil
}

type bridgeHandler struct {
	client   *Connection
	upstream *Connection
	logger   *logging.Logger
	once     sync.Once
}

// Handle pumps frames both ways until either side closes.
func (h *bridgeHandler) Handle(ctx context.Context) error {
	errs := make(chan error, 2)
	go func() { errs <- pump(h.client, h.upstream) }()
	go func() {
		err := pump(h.upstream, h.client)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = ErrUpstreamClosed
		}
		errs <- err
	}()

	var err error
	select {
	case err = <-errs:
	case <-ctx.Done():
		err = context.Cause(ctx)
	}
	h.Close()
	return err
}

func (h *bridgeHandler) Close() {
	h.once.Do(func() {
		h.upstream.WriteClose(websocket.CloseNormalClosure, "")
		_ = h.upstream.Close()
		_ = h.client.Close()
	})
}

func pump(from, to *Connection) error {
	for {
		mt, data, err := from.ReadMessage()
		if err != nil {
			return err
		}
		if err := to.WriteMessage(mt, data); err != nil {
			return err
		}
	}
}
