package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambrosia-pos-gateway/internal/domain/eventbus"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/domain/session/store"
)

type published struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, payload: payload})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

func (p *recordingPublisher) toasts() []eventbus.ToastEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.ToastEvent
	for _, e := range p.events {
		if t, ok := e.payload.(eventbus.ToastEvent); ok {
			out = append(out, t)
		}
	}
	return out
}

type fixture struct {
	client    *Client
	sessions  store.Store
	publisher *recordingPublisher
	refresher *RefreshCoordinator
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sessions := store.NewMemory(store.Config{TTL: time.Hour})
	t.Cleanup(func() { _ = sessions.Close(context.Background()) })

	pub := &recordingPublisher{}
	refresher := NewRefreshCoordinator(time.Second)
	c, err := New(Config{BaseURL: srv.URL, Timeout: time.Second}, Dependencies{
		Sessions:  sessions,
		Refresher: refresher,
		Publisher: pub,
	})
	require.NoError(t, err)
	return &fixture{client: c, sessions: sessions, publisher: pub, refresher: refresher}
}

func (f *fixture) login(t *testing.T, access, refresh string) string {
	t.Helper()
	s := session.New(access, refresh)
	require.NoError(t, f.sessions.Save(context.Background(), s))
	return s.Key
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New(Config{BaseURL: "/api"}, Dependencies{})
	assert.Error(t, err)
}

func TestRequestDecodesJSON(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/config", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		writeJSON(w, http.StatusOK, `{"businessType":"store"}`)
	}))

	var out struct {
		BusinessType string `json:"businessType"`
	}
	err := f.client.GetJSON(context.Background(), "/config?page=1", &out, Options{})
	require.NoError(t, err)
	assert.Equal(t, "store", out.BusinessType)
}

func TestRequestTextBody(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))

	resp, err := f.client.Get(context.Background(), "ping", Options{})
	require.NoError(t, err)
	assert.False(t, resp.IsJSON())
	assert.Equal(t, "pong", resp.Data)
}

func TestRequestSendsSessionCredentials(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acc", bearer(r))
		ck, err := r.Cookie(session.RefreshTokenCookie)
		require.NoError(t, err)
		assert.Equal(t, "ref", ck.Value)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	key := f.login(t, "acc", "ref")

	_, err := f.client.Get(WithSession(context.Background(), key), "/users", Options{})
	require.NoError(t, err)
}

func TestRequestJSONAndMultipartBodies(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		case "/upload":
			assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "Coffee", r.FormValue("name"))
			_, hdr, err := r.FormFile("image")
			require.NoError(t, err)
			assert.Equal(t, "coffee.png", hdr.Filename)
		}
		writeJSON(w, http.StatusCreated, `{"id":"1"}`)
	}))

	_, err := f.client.Post(context.Background(), "/json", map[string]string{"a": "b"}, Options{})
	require.NoError(t, err)

	form := FormData{
		Fields: map[string][]string{"name": {"Coffee"}},
		Files:  []FormFile{{Field: "image", Filename: "coffee.png", Content: []byte{0x89, 'P', 'N', 'G'}}},
	}
	_, err = f.client.Post(context.Background(), "/upload", form, Options{})
	require.NoError(t, err)
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	_, err := f.client.Get(context.Background(), "/slow", Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))

	toasts := f.publisher.toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, CodeTimeout, toasts[0].Code)
	assert.Equal(t, eventbus.LevelWarning, toasts[0].Level)
}

func TestRequestTimeoutSilent(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	_, err := f.client.Get(context.Background(), "/slow", Options{Timeout: 50 * time.Millisecond, Silent: true})
	assert.True(t, IsKind(err, KindTimeout))
	assert.Empty(t, f.publisher.toasts())
}

func TestRequestCanceledIsNotTimeout(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.client.Get(ctx, "/slow", Options{})
	assert.True(t, IsKind(err, KindCanceled))
	assert.Empty(t, f.publisher.toasts())
}

func TestRequestHTTPErrorToast(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Price must be positive","code":"INVALID_PRICE"}`)
	}))

	_, err := f.client.Post(context.Background(), "/products", map[string]int{"price": -1}, Options{})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode())
	assert.Equal(t, "INVALID_PRICE", apiErr.Code)

	toasts := f.publisher.toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "Price must be positive", toasts[0].Message)
}

func TestRequestForbidden(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"message":"nope"}`)
	}))
	_, err := f.client.Get(context.Background(), "/users", Options{})
	assert.True(t, IsKind(err, KindForbidden))
}

func TestWalletUnauthorizedDoesNotRefresh(t *testing.T) {
	var refreshes atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshes.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	key := f.login(t, "acc", "ref")

	_, err := f.client.Get(WithSession(context.Background(), key), "/wallet/balance", Options{})
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Zero(t, refreshes.Load())
	assert.Contains(t, f.publisher.topics(), eventbus.TopicWalletUnauthorized)
	assert.Empty(t, f.publisher.toasts())
}

func TestUnauthorizedWithoutSession(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := f.client.Get(context.Background(), "/users", Options{})
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Zero(t, f.refresher.Runs())
}

func TestRefreshThenRetry(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RefreshPath:
			http.SetCookie(w, &http.Cookie{Name: session.AccessTokenCookie, Value: "acc2"})
			http.SetCookie(w, &http.Cookie{Name: session.RefreshTokenCookie, Value: "ref2"})
			writeJSON(w, http.StatusOK, `{}`)
		default:
			if bearer(r) != "acc2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, `{"ok":true}`)
		}
	}))
	key := f.login(t, "acc1", "ref1")

	resp, err := f.client.Get(WithSession(context.Background(), key), "/tickets", Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	stored, err := f.sessions.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "acc2", stored.AccessToken)
	assert.Equal(t, "ref2", stored.RefreshToken)

	rotated, err := f.sessions.Get(context.Background(), session.KeyFor("ref2"))
	require.NoError(t, err)
	assert.Equal(t, "acc2", rotated.AccessToken)
	assert.Contains(t, f.publisher.topics(), eventbus.TopicSessionRefreshed)
}

func TestRefreshTokensFromJSONBody(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			writeJSON(w, http.StatusOK, `{"accessToken":"acc2"}`)
			return
		}
		if bearer(r) != "acc2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	}))
	key := f.login(t, "acc1", "ref1")

	_, err := f.client.Get(WithSession(context.Background(), key), "/orders", Options{})
	require.NoError(t, err)

	stored, err := f.sessions.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "ref1", stored.RefreshToken)
}

func TestConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	var current atomic.Value
	current.Store("acc1")
	gate := make(chan struct{})

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshes.Add(1)
			<-gate
			current.Store("acc2")
			writeJSON(w, http.StatusOK, `{"accessToken":"acc2","refreshToken":"ref2"}`)
			return
		}
		if bearer(r) != current.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	}))
	key := f.login(t, "acc0", "ref1")
	ctx := WithSession(context.Background(), key)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.Get(ctx, "/tickets", Options{})
		}(i)
	}

	require.Eventually(t, func() bool { return refreshes.Load() == 1 }, time.Second, 5*time.Millisecond)
	// give the remaining callers time to join the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 1, f.refresher.Runs())
}

func TestLateUnauthorizedReusesRotatedSession(t *testing.T) {
	var refreshes atomic.Int32
	slowSent := make(chan struct{})

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RefreshPath:
			refreshes.Add(1)
			ck, err := r.Cookie(session.RefreshTokenCookie)
			if err != nil || ck.Value != "ref1" {
				// ref1 is single use; a second exchange is rejected
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, `{"accessToken":"acc2","refreshToken":"ref2"}`)
		case LogoutPath:
			w.WriteHeader(http.StatusNoContent)
		default:
			if bearer(r) == "acc2" {
				writeJSON(w, http.StatusOK, `{}`)
				return
			}
			if r.URL.Query().Get("slow") == "1" {
				close(slowSent)
				time.Sleep(200 * time.Millisecond)
			}
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	key := f.login(t, "acc1", "ref1")
	ctx := WithSession(context.Background(), key)

	slowErr := make(chan error, 1)
	go func() {
		_, err := f.client.Get(ctx, "/tickets?slow=1", Options{})
		slowErr <- err
	}()
	<-slowSent

	_, err := f.client.Get(ctx, "/tickets", Options{})
	require.NoError(t, err)
	require.NoError(t, <-slowErr)

	assert.EqualValues(t, 1, refreshes.Load())
	stored, err := f.sessions.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "acc2", stored.AccessToken)
	assert.Equal(t, "ref2", stored.RefreshToken)
	assert.NotContains(t, f.publisher.topics(), eventbus.TopicSessionExpired)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	var logouts atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RefreshPath:
			w.WriteHeader(http.StatusUnauthorized)
		case LogoutPath:
			logouts.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	key := f.login(t, "acc1", "ref1")

	_, err := f.client.Get(WithSession(context.Background(), key), "/tickets", Options{})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAuthExpired, apiErr.Kind)
	assert.Equal(t, CodeAuthExpired, apiErr.Code)

	_, err = f.sessions.Get(context.Background(), key)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.EqualValues(t, 1, logouts.Load())
	assert.Contains(t, f.publisher.topics(), eventbus.TopicSessionExpired)
	assert.Empty(t, f.publisher.toasts())
}

func TestSkipRefresh(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	key := f.login(t, "acc1", "ref1")

	_, err := f.client.Get(WithSession(context.Background(), key), "/tickets", Options{SkipRefresh: true})
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Zero(t, f.refresher.Runs())
}

func TestLogoutRemovesSession(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, LogoutPath, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	key := f.login(t, "acc1", "ref1")

	require.NoError(t, f.client.Logout(context.Background(), key))
	_, err := f.sessions.Get(context.Background(), key)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
