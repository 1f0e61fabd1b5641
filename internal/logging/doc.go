// Package logging provides structured logging for the printgate gateway.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the gateway: discovery events, HTTP requests and
// print job submissions.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Discovery events, resolution failures, registry changes
//   - Info: Normal operations (requests, submitted jobs, lifecycle)
//   - Warn: Client errors (4xx), non-fatal issues
//   - Error: Subsystem failures (5xx), startup failures
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Printer registered",
//	    zap.String("name", "Office"),
//	    zap.String("device_uri", "ipp://192.0.2.5/ipp/print"),
//	)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.InitializeWithFormat("debug", "json"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given and PRINTGATE_LOG_LEVEL is unset the logger is a
// no-op, which keeps CLI subcommands quiet.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize should be
// called once before any goroutines start logging.
package logging
