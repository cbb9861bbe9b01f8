package apiclient

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

// Response is a parsed backend reply. Data holds the decoded JSON value for
// JSON responses and the body text otherwise.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Cookies     []*http.Cookie
	Raw         []byte
	Data        any
}

// IsJSON reports whether the response declared a JSON media type.
func (r *Response) IsJSON() bool {
	return isJSON(r.ContentType)
}

// Text returns the body as a string regardless of its type.
func (r *Response) Text() string {
	return string(r.Raw)
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if !r.IsJSON() {
		return fmt.Errorf("response is %q, not JSON", r.ContentType)
	}
	if len(r.Raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(r.Raw, v)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func parseBody(contentType string, raw []byte) (any, error) {
	if !isJSON(contentType) {
		return string(raw), nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// backendMessage pulls message and code out of a JSON error body.
func backendMessage(data any) (message, code string) {
	m, ok := data.(map[string]any)
	if !ok {
		if s, ok := data.(string); ok {
			return strings.TrimSpace(s), ""
		}
		return "", ""
	}
	for _, k := range []string{"message", "error", "detail"} {
		if s, ok := m[k].(string); ok && s != "" {
			message = s
			break
		}
	}
	switch c := m["code"].(type) {
	case string:
		code = c
	case float64:
		code = fmt.Sprintf("%.0f", c)
	}
	return message, code
}
