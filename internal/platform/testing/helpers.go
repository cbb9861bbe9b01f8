package testing

import (
	"io"
	"testing"
	"time"

	"ambrosia-pos-gateway/internal/platform/config"
	"ambrosia-pos-gateway/internal/platform/logging"
)

// SetupTestConfig returns defaults pointed at backendURL with short timeouts.
func SetupTestConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Mode = "test"
	cfg.Server.SecureCookies = false
	cfg.Log = config.LogConfig{
		Level: "debug",
		Dir:   t.TempDir(),
		File:  "test.log",
	}
	if backendURL != "" {
		cfg.Backend.APIURL = backendURL
		if ws, err := config.DeriveWSURL(backendURL); err == nil {
			cfg.Backend.WSURL = ws
		}
	}
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Gatekeeper.Timeout = time.Second
	cfg.Web.StaticDir = t.TempDir()
	return cfg
}

// SetupTestLogger returns a logger writing to a temp dir with console output discarded.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      t.TempDir(),
		Filename: "test.log",
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
