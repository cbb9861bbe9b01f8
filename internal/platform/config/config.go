package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Backend       BackendConfig       `yaml:"backend" mapstructure:"backend"`
	Gatekeeper    GatekeeperConfig    `yaml:"gatekeeper" mapstructure:"gatekeeper"`
	Session       SessionConfig       `yaml:"session" mapstructure:"session"`
	Reports       ReportsConfig       `yaml:"reports" mapstructure:"reports"`
	Web           WebConfig           `yaml:"web" mapstructure:"web"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	// Electron is set from NEXT_PUBLIC_ELECTRON. The desktop shell talks to the
	// gateway over plain http on loopback.
	Electron bool `yaml:"electron" mapstructure:"electron"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" mapstructure:"ip"`
	Port            int           `yaml:"port" mapstructure:"port"`
	Mode            string        `yaml:"mode" mapstructure:"mode"`
	SecureCookies   bool          `yaml:"secure_cookies" mapstructure:"secure_cookies"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// BackendConfig points at the Ambrosia backend.
type BackendConfig struct {
	APIURL  string        `yaml:"api_url" mapstructure:"api_url"`
	WSURL   string        `yaml:"ws_url" mapstructure:"ws_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type GatekeeperConfig struct {
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	HomePath       string        `yaml:"home_path" mapstructure:"home_path"`
	AuthPath       string        `yaml:"auth_path" mapstructure:"auth_path"`
	OnboardingPath string        `yaml:"onboarding_path" mapstructure:"onboarding_path"`
	OpenTurnPath   string        `yaml:"open_turn_path" mapstructure:"open_turn_path"`
	// PassThrough lists extra path prefixes that skip gating entirely.
	PassThrough []string `yaml:"pass_through" mapstructure:"pass_through"`
}

type SessionConfig struct {
	Driver    string              `yaml:"driver" mapstructure:"driver"`
	TTL       time.Duration       `yaml:"ttl" mapstructure:"ttl"`
	Namespace string              `yaml:"namespace" mapstructure:"namespace"`
	Cleanup   time.Duration       `yaml:"cleanup" mapstructure:"cleanup"`
	Redis     SessionRedisConfig  `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite    SessionSQLiteConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type SessionRedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type SessionSQLiteConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// Missing payment policies for the daily report.
const (
	MissingPaymentFail = "fail"
	MissingPaymentSkip = "skip"
)

type ReportsConfig struct {
	MissingPayment string `yaml:"missing_payment" mapstructure:"missing_payment"`
	// Timezone is an IANA name. Empty means the process local zone.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to time.Local.
func (r ReportsConfig) Location() *time.Location {
	if r.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type WebConfig struct {
	StaticDir    string `yaml:"static_dir" mapstructure:"static_dir"`
	StaticPrefix string `yaml:"static_prefix" mapstructure:"static_prefix"`
	Title        string `yaml:"title" mapstructure:"title"`
	BundleURL    string `yaml:"bundle_url" mapstructure:"bundle_url"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
