// Package main is the entry point for the terminal server.
//
// The server hosts a tabbed set of shell sessions for one browser panel.
// Each session owns a PTY-backed connection; the panel attaches over a
// WebSocket and the session strip is also reachable over REST.
//
// Architecture:
//
//	Panel (browser) ⇄ /panel WebSocket → Workspace (control loop)
//	REST /sessions  →                   → Bridge → PTY manager
//
// The server provides:
//   - REST API for sessions, zoom and scrollback export
//   - WebSocket frames for terminal I/O, resize and shortcuts
//   - Prometheus metrics at /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Optional YAML or TOML profile file
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -shell /bin/zsh -profiles profiles.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
