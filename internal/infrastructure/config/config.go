package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Input     InputConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// TerminalConfig holds session and surface defaults.
type TerminalConfig struct {
	// Shell and Directory are used when a session does not name its own.
	// Empty values fall back to $SHELL and $HOME in the backend.
	Shell     string `envconfig:"TERM_SHELL"`
	Directory string `envconfig:"TERM_DIR"`

	Rows       uint16  `envconfig:"TERM_ROWS" default:"24"`
	Cols       uint16  `envconfig:"TERM_COLS" default:"80"`
	CellWidth  float64 `envconfig:"TERM_CELL_WIDTH" default:"9"`
	CellHeight float64 `envconfig:"TERM_CELL_HEIGHT" default:"18"`
	Scrollback int     `envconfig:"TERM_SCROLLBACK" default:"5000"`

	ResizeDebounce time.Duration `envconfig:"TERM_RESIZE_DEBOUNCE" default:"100ms"`
	FitRetries     int           `envconfig:"TERM_FIT_RETRIES" default:"5"`
	FitBackoff     time.Duration `envconfig:"TERM_FIT_BACKOFF" default:"50ms"`

	// Modifier is the platform modifier for shortcuts: "ctrl" or "meta".
	Modifier string `envconfig:"TERM_MODIFIER" default:"ctrl"`

	// AllowedShells are doublestar patterns; empty allows any shell.
	AllowedShells []string `envconfig:"TERM_ALLOWED_SHELLS"`

	// Profiles is an optional YAML or TOML file of named shell profiles.
	Profiles string `envconfig:"TERM_PROFILES"`

	QueueSize        int           `envconfig:"TERM_QUEUE_SIZE" default:"256"`
	BreakerThreshold uint32        `envconfig:"TERM_BREAKER_THRESHOLD" default:"3"`
	BreakerCooldown  time.Duration `envconfig:"TERM_BREAKER_COOLDOWN" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// InputConfig holds per-panel input frame rate limiting.
type InputConfig struct {
	FramesPerSecond float64 `envconfig:"INPUT_RATE_FPS" default:"500"`
	Burst           int     `envconfig:"INPUT_RATE_BURST" default:"1000"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Terminal: TerminalConfig{
			Rows:             24,
			Cols:             80,
			CellWidth:        9,
			CellHeight:       18,
			Scrollback:       5000,
			ResizeDebounce:   100 * time.Millisecond,
			FitRetries:       5,
			FitBackoff:       50 * time.Millisecond,
			Modifier:         "ctrl",
			QueueSize:        256,
			BreakerThreshold: 3,
			BreakerCooldown:  10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Input: InputConfig{
			FramesPerSecond: 500,
			Burst:           1000,
		},
	}
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	t := c.Terminal
	var errs []error
	if t.Rows == 0 || t.Cols == 0 {
		errs = append(errs, errors.New("terminal rows and cols must be positive"))
	}
	if t.CellWidth <= 0 || t.CellHeight <= 0 {
		errs = append(errs, errors.New("cell metrics must be positive"))
	}
	switch strings.ToLower(t.Modifier) {
	case "ctrl", "meta":
	default:
		errs = append(errs, fmt.Errorf("unknown modifier %q", t.Modifier))
	}
	if t.QueueSize <= 0 {
		errs = append(errs, errors.New("queue size must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
