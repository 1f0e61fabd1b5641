package main

import (
	"testing"

	"github.com/muurk/printgate/internal/config"
	"github.com/muurk/printgate/internal/discovery"
)

func TestApplyServeFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "10.0.0.1"

	for name, value := range map[string]string{
		"port":         "8631",
		"no-discovery": "true",
		"interface":    "eth0,wlan0",
	} {
		if err := serveCmd.Flags().Set(name, value); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}
	applyServeFlags(serveCmd, cfg)

	if cfg.Server.Port != 8631 {
		t.Errorf("Port = %d, want 8631", cfg.Server.Port)
	}
	if cfg.Discovery.Enabled {
		t.Error("--no-discovery should disable discovery")
	}
	if len(cfg.Discovery.Interfaces) != 2 {
		t.Errorf("Interfaces = %v", cfg.Discovery.Interfaces)
	}
	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("unset --host overrode the config: %q", cfg.Server.Host)
	}
	if cfg.CUPS.Port != 631 {
		t.Errorf("unset --cups-port overrode the config: %d", cfg.CUPS.Port)
	}
}

func TestGatewayRecords(t *testing.T) {
	st := discovery.NormalizeServiceType(discovery.GatewayServiceType)
	records := []discovery.PrinterRecord{
		{
			Key:         "printgate." + st,
			Address:     "192.168.1.20",
			Port:        3000,
			ServiceType: st,
			Properties:  map[string]string{"scheme": "http", "version": "v1.0.0", "path": "/"},
		},
		{
			Key:         `Office\ gateway\.2.` + st,
			Address:     "192.168.1.21",
			Port:        3000,
			ServiceType: st,
			Properties:  map[string]string{"scheme": "http", "version": "v1.0.0"},
		},
		{
			Key:         "router." + st,
			Address:     "192.168.1.1",
			Port:        80,
			ServiceType: st,
			Properties:  map[string]string{},
		},
	}

	got := gatewayRecords(records)
	if len(got) != 2 {
		t.Fatalf("gatewayRecords() kept %d records, want 2", len(got))
	}
	if got[0].Name != "printgate" {
		t.Errorf("Name = %q, want printgate", got[0].Name)
	}
	if got[1].Name != "Office gateway.2" {
		t.Errorf("Name = %q, want %q", got[1].Name, "Office gateway.2")
	}
	if u := gatewayURL(got[0]); u != "http://192.168.1.20:3000" {
		t.Errorf("gatewayURL() = %q", u)
	}

	v6 := discovery.PrinterRecord{Address: "fe80::1", Port: 3000, Properties: map[string]string{"scheme": "https"}}
	if u := gatewayURL(v6); u != "https://[fe80::1]:3000" {
		t.Errorf("gatewayURL(v6) = %q", u)
	}
}

func TestRedact(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.APIKeys = []string{"k1", "k2"}
	cfg.CUPS.Password = "hunter2"

	out := redact(cfg)
	if out.Auth.APIKeys[0] != "********" || out.CUPS.Password != "********" {
		t.Errorf("secrets not masked: %+v %q", out.Auth.APIKeys, out.CUPS.Password)
	}
	if out.Server.SecretKey != "" {
		t.Errorf("empty secret should stay empty, got %q", out.Server.SecretKey)
	}
	if cfg.Auth.APIKeys[0] != "k1" || cfg.CUPS.Password != "hunter2" {
		t.Error("redact modified the original config")
	}
}
