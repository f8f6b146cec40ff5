// Package logging provides structured logging for supermqtt.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the client, the journal and the CLI.
//
// # Features
//
//   - JSON output for machine consumption, text output for terminals
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - A no-op logger for tests and library defaults
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0", logging.Writer(cfg.Logging.Output, os.Stdout, os.Stderr))
//	logger.Info("connected", "broker", "tcp://localhost:1883")
//	logger.Warn("publish rejected", "topic", topic, "error", err)
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
