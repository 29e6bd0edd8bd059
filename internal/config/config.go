package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taskpin/taskpin/internal/asana"
	"github.com/taskpin/taskpin/internal/netcheck"
	"github.com/taskpin/taskpin/internal/storage"
)

// Config holds the full daemon configuration.
type Config struct {
	// OAuth application credentials. ClientID is required for any
	// authenticated operation; ClientSecret may be empty for PKCE-only
	// applications.
	ClientID     string `env:"TASKPIN_CLIENT_ID"`
	ClientSecret string `env:"TASKPIN_CLIENT_SECRET"`

	AuthURL     string   `env:"TASKPIN_AUTH_URL" envDefault:"https://app.asana.com/-/oauth_authorize"`
	TokenURL    string   `env:"TASKPIN_TOKEN_URL" envDefault:"https://app.asana.com/-/oauth_token"`
	RedirectURL string   `env:"TASKPIN_REDIRECT_URL" envDefault:"http://127.0.0.1:8585/oauth/callback"`
	Scopes      []string `env:"TASKPIN_SCOPES" envSeparator:","`

	// APIBaseURL is the task API root.
	APIBaseURL string `env:"TASKPIN_API_BASE_URL"`

	// ListenAddr is where the message and OAuth callback server binds.
	// Keep this on loopback unless you know what you are doing.
	ListenAddr string `env:"TASKPIN_LISTEN_ADDR" envDefault:"127.0.0.1:8585"`

	MetricsAddr    string `env:"TASKPIN_METRICS_ADDR" envDefault:":9090"`
	MetricsEnabled bool   `env:"TASKPIN_METRICS_ENABLED" envDefault:"true"`

	// StoragePath is the token/cache store location. Empty means the
	// platform default under the user cache directory.
	StoragePath string `env:"TASKPIN_STORAGE_PATH"`

	// SuggestEndpoint enables the remote title suggester when set.
	SuggestEndpoint string `env:"TASKPIN_SUGGEST_ENDPOINT"`
	SuggestAPIKey   string `env:"TASKPIN_SUGGEST_API_KEY"`

	LogLevel  string `env:"TASKPIN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TASKPIN_LOG_FORMAT" envDefault:"text"`

	HTTPTimeout time.Duration `env:"TASKPIN_HTTP_TIMEOUT" envDefault:"30s"`

	// ProbeAddr is dialed to decide whether the daemon is online.
	ProbeAddr string `env:"TASKPIN_PROBE_ADDR"`
}

// Load reads configuration from the environment and fills in defaults
// that cannot be expressed as struct tags.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = asana.DefaultBaseURL
	}
	if cfg.ProbeAddr == "" {
		cfg.ProbeAddr = netcheck.DefaultProbeAddr
	}
	if cfg.StoragePath == "" {
		path, err := storage.DefaultStoragePath()
		if err != nil {
			return nil, fmt.Errorf("resolving storage path: %w", err)
		}
		cfg.StoragePath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that env parsing cannot express.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}
