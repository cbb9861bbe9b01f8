// Package apiclient calls the Ambrosia backend on behalf of a browser session.
// It bounds every call with a timeout, refreshes expired access tokens once
// per session, retries the original call once, and publishes notifications.
package apiclient

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ambrosia-pos-gateway/internal/domain/eventbus"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
)

// Backend paths the client itself calls.
const (
	RefreshPath = "/auth/refresh"
	LogoutPath  = "/auth/logout"
)

// Sessions is the part of the session store the client uses.
type Sessions interface {
	Get(ctx context.Context, key string) (session.Session, error)
	Save(ctx context.Context, s session.Session) error
	Remove(ctx context.Context, key string) error
}

// Options tune a single request.
type Options struct {
	Method  string
	Query   url.Values
	Headers http.Header
	// Body is JSON encoded unless it is a FormData, a Raw, or is paired with
	// an explicit Content-Type header.
	Body    any
	Timeout time.Duration
	// Silent suppresses notifications for this call.
	Silent bool
	// SkipRefresh returns 401 as KindUnauthorized without refreshing.
	SkipRefresh bool
	// SessionKey overrides the session carried by the context.
	SessionKey string
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	sessions  Sessions
	refresher *RefreshCoordinator
	publisher eventbus.Publisher
	logger    *logging.Logger
}

type Dependencies struct {
	HTTPClient *http.Client
	Sessions   Sessions
	Refresher  *RefreshCoordinator
	Publisher  eventbus.Publisher
	Logger     *logging.Logger
}

func New(cfg Config, deps Dependencies) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	refresher := deps.Refresher
	if refresher == nil {
		refresher = NewRefreshCoordinator(timeout)
	}
	return &Client{
		base:      base,
		http:      httpClient,
		timeout:   timeout,
		sessions:  deps.Sessions,
		refresher: refresher,
		publisher: deps.Publisher,
		logger:    deps.Logger,
	}, nil
}

type sessionKey struct{}

// WithSession attaches a session key to ctx for every request made with it.
func WithSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKey{}, key)
}

func SessionFrom(ctx context.Context) string {
	key, _ := ctx.Value(sessionKey{}).(string)
	return key
}

// BaseURL returns the backend base url.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

func (c *Client) Get(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	opts.Method = http.MethodGet
	return c.Request(ctx, endpoint, opts)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any, opts Options) (*Response, error) {
	opts.Method = http.MethodPost
	opts.Body = body
	return c.Request(ctx, endpoint, opts)
}

// GetJSON fetches endpoint and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any, opts Options) error {
	resp, err := c.Get(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return &Error{Kind: KindDecode, Endpoint: endpoint, Status: resp.Status, Cause: err}
	}
	return nil
}

// Request performs one backend call. A 2xx/3xx reply yields a Response; any
// other outcome yields an *Error.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Headers == nil {
		opts.Headers = http.Header{}
	}

	ctx, end := observability.StartSpan(ctx, "apiclient", "request")
	resp, err := c.request(ctx, endpoint, opts)
	end(err)

	status := "error"
	if resp != nil {
		status = fmt.Sprint(resp.Status)
	}
	observability.RecordMetric(ctx, "backend_requests_total", 1, map[string]string{"status": status})

	if err != nil {
		key := opts.SessionKey
		if key == "" {
			key = SessionFrom(ctx)
		}
		c.notify(endpoint, key, opts, err)
	}
	return resp, err
}

func (c *Client) request(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	body, err := encodeBody(opts.Body, opts.Headers)
	if err != nil {
		return nil, &Error{Kind: KindEncode, Endpoint: endpoint, Cause: err}
	}

	key := opts.SessionKey
	if key == "" {
		key = SessionFrom(ctx)
	}

	sess, hasSession := c.loadSession(ctx, key)
	resp, err := c.send(ctx, endpoint, opts, body, sess, hasSession)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		if scope := unauthorizedScope(endpoint); scope != "" {
			c.publishUnauthorized(scope, endpoint, key)
			return nil, c.statusError(endpoint, resp, KindUnauthorized, CodeUnauthorized)
		}
		if opts.SkipRefresh || !hasSession {
			return nil, c.statusError(endpoint, resp, KindUnauthorized, CodeUnauthorized)
		}

		if _, err := c.refresher.Do(ctx, sess, c.refreshSent); err != nil {
			if ctx.Err() != nil {
				return nil, c.contextError(ctx, endpoint, ctx.Err())
			}
			c.expire(ctx, sess, err)
			return nil, &Error{
				Kind:     KindAuthExpired,
				Status:   http.StatusUnauthorized,
				Code:     CodeAuthExpired,
				Message:  "session expired",
				Endpoint: endpoint,
				Cause:    err,
			}
		}

		// exactly one retry, with whatever the store now holds
		sess, hasSession = c.loadSession(ctx, key)
		resp, err = c.send(ctx, endpoint, opts, body, sess, hasSession)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			return nil, c.statusError(endpoint, resp, KindUnauthorized, CodeUnauthorized)
		}
	}

	switch {
	case resp.Status == http.StatusForbidden:
		return nil, c.statusError(endpoint, resp, KindForbidden, CodeForbidden)
	case resp.Status >= 400:
		return nil, c.statusError(endpoint, resp, KindHTTP, "")
	}
	return resp, nil
}

func (c *Client) loadSession(ctx context.Context, key string) (session.Session, bool) {
	if key == "" || c.sessions == nil {
		return session.Session{}, false
	}
	sess, err := c.sessions.Get(ctx, key)
	if err != nil {
		return session.Session{}, false
	}
	return sess, true
}

// send performs one HTTP round trip bounded by the call timeout.
func (c *Client) send(ctx context.Context, endpoint string, opts Options, body *encodedBody, sess session.Session, hasSession bool) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(callCtx, opts.Method, c.resolve(endpoint, opts.Query), reader)
	if err != nil {
		return nil, &Error{Kind: KindEncode, Endpoint: endpoint, Cause: err}
	}
	for name, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
	if hasSession {
		attachSession(req, sess)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, c.contextError(callCtx, endpoint, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.contextError(callCtx, endpoint, err)
	}

	contentType := res.Header.Get("Content-Type")
	data, err := parseBody(contentType, raw)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Endpoint: endpoint, Status: res.StatusCode, Cause: err}
	}

	return &Response{
		Status:      res.StatusCode,
		Header:      res.Header,
		ContentType: contentType,
		Cookies:     res.Cookies(),
		Raw:         raw,
		Data:        data,
	}, nil
}

func (c *Client) resolve(endpoint string, query url.Values) string {
	u := *c.base
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	q, _ := url.ParseQuery(rawQuery)
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func attachSession(req *http.Request, sess session.Session) {
	if sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		req.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: sess.AccessToken})
	}
	if sess.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: session.RefreshTokenCookie, Value: sess.RefreshToken})
	}
}

// contextError maps transport failures onto timeout, canceled or network.
func (c *Client) contextError(ctx context.Context, endpoint string, err error) *Error {
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Message: "request timed out", Endpoint: endpoint, Cause: err}
	case stderrors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Endpoint: endpoint, Cause: err}
	default:
		return &Error{Kind: KindNetwork, Code: CodeNetwork, Message: "backend unreachable", Endpoint: endpoint, Cause: err}
	}
}

func (c *Client) statusError(endpoint string, resp *Response, kind Kind, fallbackCode string) *Error {
	message, code := backendMessage(resp.Data)
	if code == "" {
		code = fallbackCode
	}
	if message == "" {
		message = http.StatusText(resp.Status)
	}
	return &Error{
		Kind:     kind,
		Status:   resp.Status,
		Code:     code,
		Message:  message,
		Endpoint: endpoint,
		Body:     resp.Data,
	}
}

// unauthorizedScope names the signal a 401 on endpoint raises instead of a
// refresh: wallet and auth endpoints are handled by the caller.
func unauthorizedScope(endpoint string) string {
	p := "/" + strings.TrimLeft(strings.SplitN(endpoint, "?", 2)[0], "/")
	switch {
	case p == "/wallet" || strings.HasPrefix(p, "/wallet/"):
		return "wallet"
	case p == "/auth" || strings.HasPrefix(p, "/auth/"):
		return "auth"
	default:
		return ""
	}
}

func (c *Client) publishUnauthorized(scope, endpoint, key string) {
	if c.publisher == nil {
		return
	}
	topic := eventbus.TopicAuthUnauthorized
	if scope == "wallet" {
		topic = eventbus.TopicWalletUnauthorized
	}
	c.publisher.Publish(topic, eventbus.UnauthorizedEvent{
		Scope:      scope,
		Endpoint:   endpoint,
		SessionKey: key,
		At:         time.Now(),
	})
}

func (c *Client) notify(endpoint, key string, opts Options, err error) {
	if c.publisher == nil || opts.Silent {
		return
	}
	var apiErr *Error
	if !stderrors.As(err, &apiErr) {
		return
	}
	if apiErr.Kind == KindTimeout {
		c.publisher.Publish(eventbus.TopicToast, eventbus.ToastEvent{
			Level:      eventbus.LevelWarning,
			Message:    "The server took too long to respond",
			Code:       CodeTimeout,
			Endpoint:   endpoint,
			SessionKey: key,
			At:         time.Now(),
		})
		return
	}
	if silentKinds[apiErr.Kind] {
		return
	}
	msg := apiErr.Message
	if msg == "" {
		msg = "Request failed"
	}
	c.publisher.Publish(eventbus.TopicToast, eventbus.ToastEvent{
		Level:      eventbus.LevelError,
		Message:    msg,
		Code:       apiErr.Code,
		Status:     apiErr.Status,
		Endpoint:   endpoint,
		SessionKey: key,
		At:         time.Now(),
	})
}
