package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds notification delivery targets.
type AlertsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort           = 8080
	DefaultStorageDriver      = "sqlite"
	DefaultStoragePath        = "brandlens.db"
	DefaultEvaluationWindow   = 24 * time.Hour
	DefaultEvaluationInterval = 15 * time.Minute
	DefaultLogLevel           = "info"
)

// Config holds the server configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Storage selects the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Evaluation controls the rule evaluation window and background schedule.
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Alerts holds webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// Log controls the slog level.
	Log LogConfig `yaml:"log"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig selects where rules, alerts, cases and samples are kept.
type StorageConfig struct {
	// Driver is one of: sqlite | memory.
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `yaml:"path"`
}

// EvaluationConfig controls rule evaluation.
type EvaluationConfig struct {
	// Window is the length of the current and previous comparison windows.
	// Rule alerts are de-duplicated per rule per window. Default: 24h.
	Window time.Duration `yaml:"window"`

	// Interval is how often every client is evaluated and swept in the
	// background. Zero disables the background loop. Default: 15m.
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Storage: StorageConfig{
				Driver: DefaultStorageDriver,
				Path:   DefaultStoragePath,
			},
			Evaluation: EvaluationConfig{
				Window:   DefaultEvaluationWindow,
				Interval: DefaultEvaluationInterval,
			},
			Log: LogConfig{Level: DefaultLogLevel},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Storage.Driver {
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("server.storage.driver %q unknown: want sqlite|memory", s.Storage.Driver)
	}
	if s.Evaluation.Window <= 0 {
		return fmt.Errorf("server.evaluation.window must be positive")
	}
	if s.Evaluation.Interval < 0 {
		return fmt.Errorf("server.evaluation.interval must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "pagerduty", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|pagerduty|http", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("server.alerts.webhooks[%d].url_env is required", i)
		}
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	return nil
}
