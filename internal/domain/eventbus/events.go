package eventbus

import "time"

// Topics published by the gateway.
const (
	// TopicToast carries a user facing notification.
	TopicToast = "notify:toast"
	// TopicAuthUnauthorized fires when an auth endpoint answers 401.
	TopicAuthUnauthorized = "auth:unauthorized"
	// TopicWalletUnauthorized fires when a wallet endpoint answers 401. The
	// client asks for the wallet password again instead of refreshing.
	TopicWalletUnauthorized = "wallet:unauthorized"
	// TopicSessionRefreshed fires after a successful token refresh.
	TopicSessionRefreshed = "session:refreshed"
	// TopicSessionExpired fires when a refresh fails and the session is cleared.
	TopicSessionExpired = "auth:expired"
)

// Toast levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

type ToastEvent struct {
	Level    string `json:"level"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Status   int    `json:"status,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	// SessionKey scopes the toast to one browser. Empty means everyone.
	SessionKey string    `json:"session_key,omitempty"`
	At         time.Time `json:"at"`
}

type UnauthorizedEvent struct {
	Scope      string    `json:"scope"`
	Endpoint   string    `json:"endpoint"`
	SessionKey string    `json:"session_key,omitempty"`
	At         time.Time `json:"at"`
}

type SessionEvent struct {
	SessionKey string    `json:"session_key"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}
