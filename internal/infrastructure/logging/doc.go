// Package logging provides structured logging for netmuxd.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version fields on every entry. *Logger satisfies the small
// Logger interfaces the other packages declare, so it is passed straight
// to SetLogger.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	sup.SetLogger(logger.With("component", "supervisor"))
package logging
