package config

import "time"

// DefaultConfig returns the configuration used when no file overrides a field.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            3000,
			Mode:            "release",
			SecureCookies:   true,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "gateway.log",
		},
		Backend: BackendConfig{
			APIURL:  "http://127.0.0.1:9154",
			Timeout: 15 * time.Second,
		},
		Gatekeeper: GatekeeperConfig{
			Timeout:        3 * time.Second,
			HomePath:       "/",
			AuthPath:       "/auth",
			OnboardingPath: "/onboarding",
			OpenTurnPath:   "/shifts/open-turn",
		},
		Session: SessionConfig{
			Driver:    "memory",
			TTL:       7 * 24 * time.Hour,
			Namespace: "ambrosia:session",
			Cleanup:   10 * time.Minute,
			SQLite: SessionSQLiteConfig{
				DSN: "data/gateway.db",
			},
		},
		Reports: ReportsConfig{
			MissingPayment: MissingPaymentFail,
		},
		Web: WebConfig{
			StaticDir:    "public",
			StaticPrefix: "/static",
			Title:        "Ambrosia PoS",
			BundleURL:    "/static/app.js",
		},
	}
}
