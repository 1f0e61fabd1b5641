package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Version is the current config file schema version
const Version = 1

// Config is the whole printgate configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	CUPS      CUPSConfig      `yaml:"cups"`
	Logging   LoggingConfig   `yaml:"logging"`
	Client    ClientConfig    `yaml:"client"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CertFile       string   `yaml:"cert_file,omitempty"`
	KeyFile        string   `yaml:"key_file,omitempty"`
	SecretKey      string   `yaml:"secret_key,omitempty"` // HMAC key for API key comparison
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	TempDir        string   `yaml:"temp_dir,omitempty"` // Upload spool directory (os.TempDir if empty)
	CORSOrigins    []string `yaml:"cors_origins,omitempty"`
	LegacyAPI      bool     `yaml:"legacy_api"` // Serve the deprecated /v0 routes
}

// AuthConfig lists accepted API keys. No keys means no authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys,omitempty"`
}

// RateLimitConfig holds per-caller request budgets. Zero disables a budget.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerDay    int `yaml:"per_day"`
}

// DiscoveryConfig controls mDNS browsing and self-advertisement.
type DiscoveryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ServiceTypes    []string      `yaml:"service_types,omitempty"`
	Interfaces      []string      `yaml:"interfaces,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout"`
	MissedRounds    int           `yaml:"missed_rounds"`
	Advertise       bool          `yaml:"advertise"`
	AdvertiseName   string        `yaml:"advertise_name,omitempty"`
}

// CUPSConfig is the print server connection.
type CUPSConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	UseTLS   bool   `yaml:"use_tls"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig is read by printgate-client.
type ClientConfig struct {
	GatewayURL     string        `yaml:"gateway_url"`
	APIKey         string        `yaml:"api_key,omitempty"`
	DefaultPrinter string        `yaml:"default_printer,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Version: Version,
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			MaxUploadBytes: 32 << 20,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			PerDay:    1000,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			ServiceTypes:    []string{"_ipp._tcp.local.", "_airprint._tcp.local."},
			RefreshInterval: 30 * time.Second,
			ResolveTimeout:  5 * time.Second,
			MissedRounds:    2,
			AdvertiseName:   "printgate",
		},
		CUPS: CUPSConfig{
			Host: "localhost",
			Port: 631,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Client: ClientConfig{
			GatewayURL: "http://localhost:3000",
			Timeout:    30 * time.Second,
		},
	}
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TLSEnabled reports whether both certificate and key are configured
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// AuthEnabled reports whether API keys are required
func (a AuthConfig) AuthEnabled() bool {
	return len(a.APIKeys) > 0
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != Version {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, Version))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, errors.New("server.cert_file and server.key_file must be set together"))
	}

	for i, key := range c.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d] is empty", i))
		}
	}

	if c.RateLimit.PerMinute < 0 || c.RateLimit.PerDay < 0 {
		errs = append(errs, errors.New("rate_limit values cannot be negative"))
	}

	if c.Discovery.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("discovery.refresh_interval too short (min 1s): %s", c.Discovery.RefreshInterval))
	}
	if c.Discovery.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("discovery.resolve_timeout must be positive"))
	}
	if c.Discovery.MissedRounds < 1 {
		errs = append(errs, fmt.Errorf("discovery.missed_rounds must be at least 1, got %d", c.Discovery.MissedRounds))
	}

	if c.CUPS.Host == "" {
		errs = append(errs, errors.New("cups.host cannot be empty"))
	}
	if c.CUPS.Port < 1 || c.CUPS.Port > 65535 {
		errs = append(errs, fmt.Errorf("cups.port must be 1-65535, got %d", c.CUPS.Port))
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'console' or 'json', got '%s'", c.Logging.Format))
	}

	if c.Client.GatewayURL != "" {
		if u, err := url.Parse(c.Client.GatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.gateway_url is not an absolute URL: %q", c.Client.GatewayURL))
		}
	}

	return errors.Join(errs...)
}
