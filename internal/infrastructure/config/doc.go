// Package config provides 12-factor configuration management for termhub.
//
// Configuration is loaded from environment variables with sensible defaults.
// Named shell profiles live in an optional YAML or TOML file.
//
// Configuration Sections:
//   - Server: HTTP listen address, shutdown grace, CORS origins
//   - Terminal: default shell/dir, geometry, cell metrics, debounce, shortcuts
//   - Logging: Log level and output format
//   - RateLimit: Per-IP HTTP rate limiting
//   - Input: Per-panel input frame rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	profiles, err := config.LoadProfiles(cfg.Terminal.Profiles)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, ALLOWED_ORIGINS
//   - TERM_SHELL, TERM_DIR, TERM_ROWS, TERM_COLS, TERM_CELL_WIDTH, TERM_CELL_HEIGHT
//   - TERM_SCROLLBACK, TERM_RESIZE_DEBOUNCE, TERM_FIT_RETRIES, TERM_FIT_BACKOFF
//   - TERM_MODIFIER, TERM_ALLOWED_SHELLS, TERM_PROFILES
//   - TERM_QUEUE_SIZE, TERM_BREAKER_THRESHOLD, TERM_BREAKER_COOLDOWN
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - INPUT_RATE_FPS, INPUT_RATE_BURST
package config
