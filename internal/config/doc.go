// Package config provides configuration management for printgate.
//
// Configuration is layered. Each layer overrides the one before it:
//
//  1. Built-in defaults (Default)
//  2. The YAML config file (Load)
//  3. Environment variables, optionally read from a .env file (LoadEnvFiles, ApplyEnv)
//  4. Command-line flags, applied by the cmd packages
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/printgate/config.yaml or $HOME/.config/printgate/config.yaml
//   - macOS: $HOME/.config/printgate/config.yaml
//   - Windows: %LOCALAPPDATA%\printgate\config.yaml
//
// # Environment Variables
//
// PORT and PRINTGATE_PORT set the listen port. Other overrides use the
// PRINTGATE_ prefix, for example PRINTGATE_API_KEYS (comma separated),
// PRINTGATE_SECRET_KEY, PRINTGATE_MAX_UPLOAD_BYTES, PRINTGATE_RATE_PER_MINUTE,
// PRINTGATE_RATE_PER_DAY, PRINTGATE_CUPS_HOST and PRINTGATE_LOG_LEVEL.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplyEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Security
//
// The file may hold API keys, the HMAC secret and CUPS credentials. Save
// writes it with 0600 permissions.
package config
