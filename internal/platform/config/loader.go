package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ambrosia-pos-gateway/internal/platform/errors"
)

// Environment variable names shared with the web client build.
const (
	EnvAPIURL   = "NEXT_PUBLIC_API_URL"
	EnvWSURL    = "NEXT_PUBLIC_WS_URL"
	EnvElectron = "NEXT_PUBLIC_ELECTRON"
	EnvConfig   = "AMBROSIA_CONFIG"
)

var searchPaths = []string{"config.yaml", ".config.yaml"}

// Loader builds a Config from defaults, an optional yaml file and the environment.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file instead of searching for one.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv replaces the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and the file it came from, if any.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal outside development.
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "parse "+path, err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Backend.WSURL == "" {
		ws, err := DeriveWSURL(cfg.Backend.APIURL)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "derive websocket url", err)
		}
		cfg.Backend.WSURL = ws
	}
	if cfg.Electron {
		cfg.Server.SecureCookies = false
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) resolvePath() (string, error) {
	if l.path != "" {
		return l.path, nil
	}
	if p, ok := l.lookupEnv(EnvConfig); ok && p != "" {
		return p, nil
	}
	for _, candidate := range searchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.lookupEnv(EnvAPIURL); ok && v != "" {
		cfg.Backend.APIURL = strings.TrimRight(v, "/")
	}
	if v, ok := l.lookupEnv(EnvWSURL); ok && v != "" {
		cfg.Backend.WSURL = v
	}
	if v, ok := l.lookupEnv(EnvElectron); ok && v != "" {
		electron, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "env", EnvElectron+" must be a boolean", err)
		}
		cfg.Electron = electron
	}
	if v, ok := l.lookupEnv("AMBROSIA_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "env", "AMBROSIA_PORT must be a number", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.lookupEnv("AMBROSIA_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := l.lookupEnv("AMBROSIA_SESSION_DRIVER"); ok && v != "" {
		cfg.Session.Driver = v
	}
	if v, ok := l.lookupEnv("AMBROSIA_REDIS_ADDR"); ok && v != "" {
		cfg.Session.Redis.Addr = v
	}
	return nil
}

// DeriveWSURL maps http(s)://host/... to ws(s)://host/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "validate", fmt.Sprintf("server port %d out of range", cfg.Server.Port))
	}

	u, err := url.Parse(cfg.Backend.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.KindConfig, "validate", fmt.Sprintf("backend api_url %q must be an absolute http(s) url", cfg.Backend.APIURL))
	}
	if cfg.Backend.Timeout <= 0 || cfg.Gatekeeper.Timeout <= 0 {
		return errors.New(errors.KindConfig, "validate", "backend and gatekeeper timeouts must be positive")
	}

	switch strings.ToLower(cfg.Session.Driver) {
	case "memory", "sqlite":
	case "redis":
		if cfg.Session.Redis.Addr == "" {
			return errors.New(errors.KindConfig, "validate", "session.redis.addr is required for the redis driver")
		}
	default:
		return errors.New(errors.KindConfig, "validate", fmt.Sprintf("unknown session driver %q", cfg.Session.Driver))
	}

	switch cfg.Reports.MissingPayment {
	case MissingPaymentFail, MissingPaymentSkip:
	default:
		return errors.New(errors.KindConfig, "validate", fmt.Sprintf("reports.missing_payment must be %q or %q", MissingPaymentFail, MissingPaymentSkip))
	}
	if cfg.Reports.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Reports.Timezone); err != nil {
			return errors.Wrap(errors.KindConfig, "validate", "reports.timezone", err)
		}
	}
	return nil
}
