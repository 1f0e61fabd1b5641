package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/printgate/internal/config"
	"github.com/muurk/printgate/internal/discovery"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/server"
)

// Serve command flags
var (
	host         string
	port         int
	certPath     string
	keyPath      string
	logLevel     string
	logFormat    string
	noDiscovery  bool
	advertise    bool
	legacyAPI    bool
	cupsHost     string
	cupsPort     int
	corsOrigins  []string
	ifaceNames   []string
	serviceTypes []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the print gateway",
	Long: `Start the print gateway.

Settings are read from the config file, then PRINTGATE_* environment
variables (and PORT), then the flags below. Only flags that are given
override the lower layers.

When both --cert and --key are given the API is served over HTTPS.`,
	Example: `  # Start with defaults (port 3000, discovery on)
  printgate serve

  # Listen on 8631 and announce the gateway on the LAN
  printgate serve --port 8631 --advertise

  # Only browse on one interface, CUPS on another host
  printgate serve --interface eth0 --cups-host print.lan

  # HTTPS with JSON logs
  printgate serve --cert fullchain.pem --key privkey.pem --log-format json`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&host, "host", "", "Listen host (empty = config value, default 0.0.0.0)")
	f.IntVar(&port, "port", 0, "Listen port")
	f.StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	f.StringVar(&keyPath, "key", "", "Path to TLS private key file")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	f.BoolVar(&noDiscovery, "no-discovery", false, "Disable mDNS printer discovery")
	f.BoolVar(&advertise, "advertise", false, "Announce the gateway over mDNS")
	f.BoolVar(&legacyAPI, "legacy-api", false, "Also serve the deprecated /v0 routes")
	f.StringVar(&cupsHost, "cups-host", "", "CUPS server host")
	f.IntVar(&cupsPort, "cups-port", 0, "CUPS server port")
	f.StringSliceVar(&corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, default *)")
	f.StringSliceVar(&ifaceNames, "interface", nil, "Network interface to browse on (repeatable, default all)")
	f.StringSliceVar(&serviceTypes, "service-type", nil, "mDNS service type to browse (repeatable)")
}

// loadConfig layers the config file, environment and .env files.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

// applyServeFlags copies explicitly set flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("host") {
		cfg.Server.Host = host
	}
	if changed("port") {
		cfg.Server.Port = port
	}
	if changed("cert") {
		cfg.Server.CertFile = certPath
	}
	if changed("key") {
		cfg.Server.KeyFile = keyPath
	}
	if changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if changed("no-discovery") {
		cfg.Discovery.Enabled = !noDiscovery
	}
	if changed("advertise") {
		cfg.Discovery.Advertise = advertise
	}
	if changed("legacy-api") {
		cfg.Server.LegacyAPI = legacyAPI
	}
	if changed("cups-host") {
		cfg.CUPS.Host = cupsHost
	}
	if changed("cups-port") {
		cfg.CUPS.Port = cupsPort
	}
	if changed("cors-origin") {
		cfg.Server.CORSOrigins = corsOrigins
	}
	if changed("interface") {
		cfg.Discovery.Interfaces = ifaceNames
	}
	if changed("service-type") {
		cfg.Discovery.ServiceTypes = serviceTypes
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	if err := logging.InitializeWithFormat(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	srv, err := server.New(cfg, server.Deps{})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// Scan command flags
var (
	scanTimeout  time.Duration
	scanGateways bool
	scanFormat   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the network for printers or gateways",
	Long: `Browse mDNS for a fixed time and list what answered.

By default the configured printer service types are browsed (IPP and
AirPrint). With --gateways, printgate instances started with --advertise
are listed instead.`,
	Example: `  # Scan for printers for 10 seconds (default)
  printgate scan

  # Quick 3-second scan on one interface
  printgate scan --timeout 3s --interface wlan0

  # Find gateways
  printgate scan --gateways

  # JSON output for scripting
  printgate scan --format json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen")
	scanCmd.Flags().BoolVar(&scanGateways, "gateways", false, "Look for printgate gateways instead of printers")
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&ifaceNames, "interface", nil, "Network interface to browse on (repeatable, default all)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interface") {
		cfg.Discovery.Interfaces = ifaceNames
	}

	// Silent unless PRINTGATE_LOG_LEVEL asks for output.
	if err := logging.Initialize(""); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ifaces, err := discovery.InterfacesByName(cfg.Discovery.Interfaces)
	if err != nil {
		return err
	}

	types := cfg.Discovery.ServiceTypes
	what := "printers"
	if scanGateways {
		types = []string{discovery.NormalizeServiceType(discovery.GatewayServiceType)}
		what = "gateways"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scanFormat != "json" {
		fmt.Printf("Scanning for %s (timeout: %s)...\n\n", what, scanTimeout)
	}

	records, err := discovery.Scan(ctx, server.NewTransport(cfg.Discovery, ifaces), types, scanTimeout)
	if err != nil {
		return err
	}
	if scanGateways {
		records = gatewayRecords(records)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	if scanFormat == "json" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Printf("No %s found.\n", what)
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that this machine is on the same network segment")
		fmt.Println("  - Multicast traffic may be blocked by the firewall (UDP 5353)")
		fmt.Println("  - Try increasing --timeout for slower networks")
		if scanGateways {
			fmt.Println("  - Gateways only announce themselves when started with --advertise")
		}
		return nil
	}

	fmt.Printf("Found %d %s:\n\n", len(records), what)
	for i, rec := range records {
		printRecord(i+1, rec, scanGateways)
	}

	if scanGateways {
		fmt.Println("Use 'printgate-client --gateway <url> printers' to list a gateway's printers")
	} else {
		fmt.Println("Use 'printgate-client add <name> <address>' to add a printer as a local queue")
	}
	return nil
}

// gatewayRecords keeps the _http._tcp answers that carry printgate's TXT
// keys and names them by instance.
func gatewayRecords(records []discovery.PrinterRecord) []discovery.PrinterRecord {
	var out []discovery.PrinterRecord
	for _, rec := range records {
		if rec.GetProperty("version") == "" || rec.GetProperty("scheme") == "" {
			continue
		}
		rec.Name = discovery.UnescapeName(discovery.InstanceName(rec.Key, rec.ServiceType))
		out = append(out, rec)
	}
	return out
}

func printRecord(n int, rec discovery.PrinterRecord, gateway bool) {
	fmt.Printf("%d. %s\n", n, rec.Name)
	if gateway {
		fmt.Printf("   URL:      %s\n", gatewayURL(rec))
		fmt.Printf("   Version:  %s\n", rec.GetProperty("version"))
		if rec.GetProperty("auth") == "true" {
			fmt.Println("   Auth:     API key required")
		}
		fmt.Println()
		return
	}

	fmt.Printf("   Address:  %s:%d\n", rec.Address, rec.Port)
	if m := rec.Manufacturer(); m != "" {
		fmt.Printf("   Model:    %s\n", m)
	}
	if loc := rec.GetProperty("note"); loc != "" {
		fmt.Printf("   Location: %s\n", loc)
	}
	fmt.Println()
}

func gatewayURL(rec discovery.PrinterRecord) string {
	scheme := rec.GetProperty("scheme")
	if scheme == "" {
		scheme = "http"
	}
	addr := rec.Address
	if strings.Contains(addr, ":") {
		addr = "[" + addr + "]"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, addr, rec.Port)
}

// Config command
var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot access config file: %w", err)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file and environment have been
applied. API keys, passwords and the secret key are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(redact(cfg))
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "\nWarning: %v\n", err)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configPathCmd, configShowCmd)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// redact returns a copy of cfg with secrets masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Auth.APIKeys = make([]string, len(cfg.Auth.APIKeys))
	for i, k := range cfg.Auth.APIKeys {
		out.Auth.APIKeys[i] = mask(k)
	}
	out.Server.SecretKey = mask(cfg.Server.SecretKey)
	out.CUPS.Password = mask(cfg.CUPS.Password)
	out.Client.APIKey = mask(cfg.Client.APIKey)
	return &out
}
