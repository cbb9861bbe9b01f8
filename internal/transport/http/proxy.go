package httptransport

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
)

// APIPrefix is where the browser reaches the backend REST API.
const APIPrefix = "/api"

// Proxy forwards /api/* to the backend, stripping the prefix.
type Proxy struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger *logging.Logger
}

func NewProxy(apiURL string, transport http.RoundTripper, logger *logging.Logger) (*Proxy, error) {
	target, err := url.Parse(apiURL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("proxy: invalid backend url %q", apiURL)
	}

	p := &Proxy{target: target, logger: logger}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.URL.Path = joinPath(target.Path, strings.TrimPrefix(r.In.URL.Path, APIPrefix))
			r.Out.URL.RawPath = ""
			r.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.WarnTag("PROXY", "%s %s failed: %v", r.Method, r.URL.Path, err)
			observability.RecordMetric(r.Context(), "proxy.errors", 1, map[string]string{"method": r.Method})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"success":false,"data":null,"message":"backend unavailable","code":502}`))
		},
	}
	return p, nil
}

func joinPath(base, rest string) string {
	base = strings.TrimRight(base, "/")
	if rest == "" {
		rest = "/"
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}

func (p *Proxy) Handle(c *gin.Context) {
	ctx, end := observability.StartSpan(c.Request.Context(), "proxy", c.Request.Method)
	c.Request = c.Request.WithContext(ctx)
	p.proxy.ServeHTTP(c.Writer, c.Request)
	var err error
	if c.Writer.Status() >= http.StatusInternalServerError {
		err = fmt.Errorf("status %d", c.Writer.Status())
	}
	end(err)
}

func (p *Proxy) RegisterRoutes(router *Router) {
	router.Engine.Any(APIPrefix, p.Handle)
	router.Engine.Any(APIPrefix+"/*path", p.Handle)
}
