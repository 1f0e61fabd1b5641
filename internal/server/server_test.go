package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/printgate/internal/config"
	"github.com/muurk/printgate/internal/discovery"
	"github.com/muurk/printgate/internal/spooler"
	"github.com/muurk/printgate/internal/version"
)

type fakeTransport struct {
	mu        sync.Mutex
	browseErr error
	browsed   []string
	closed    int
	infos     map[string]*discovery.ServiceInfo
	initial   []discovery.Event
}

func (f *fakeTransport) Browse(ctx context.Context, serviceType string, events chan<- discovery.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browseErr != nil {
		return f.browseErr
	}
	f.browsed = append(f.browsed, serviceType)
	for _, ev := range f.initial {
		if ev.ServiceType != serviceType {
			continue
		}
		ev := ev
		go func() {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}()
	}
	return nil
}

func (f *fakeTransport) Resolve(ctx context.Context, serviceType, name string) (*discovery.ServiceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[name]
	if !ok {
		return nil, discovery.ErrNotResolved
	}
	return info, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeAdvertiser struct {
	mu       sync.Mutex
	name     string
	port     int
	txt      []string
	err      error
	shutdown int
}

func (a *fakeAdvertiser) Advertise(name string, port int, txt []string, ifaces []net.Interface) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name, a.port, a.txt = name, port, txt
	return a.err
}

func (a *fakeAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown++
}

type fakeSpooler struct{}

func (fakeSpooler) Printers() ([]spooler.LocalPrinter, error) { return nil, nil }
func (fakeSpooler) PPDs() ([]spooler.PPD, error)              { return nil, nil }
func (fakeSpooler) AddPrinter(spooler.Registration) error     { return nil }
func (fakeSpooler) Jobs() ([]spooler.Job, error)              { return nil, nil }
func (fakeSpooler) PrintFile(printer, path, title string, options map[string]string) (int, error) {
	return 1, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Discovery.ServiceTypes = []string{discovery.ServiceTypeIPP}
	return cfg
}

func localListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	return ln
}

// runServer starts s and returns a stop function that cancels it and waits for Run.
func runServer(t *testing.T, s *Server) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(5 * time.Second):
				runErr = errors.New("Run() did not return after cancel")
			}
		})
		return runErr
	}
	t.Cleanup(func() { stop() })
	return stop
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("decode %s: %v (body %s)", url, err, data)
		}
	}
	return resp.StatusCode
}

func TestRun_ServesDiscoveredPrinters(t *testing.T) {
	transport := &fakeTransport{
		infos: map[string]*discovery.ServiceInfo{
			"Lab._ipp._tcp.local.": {
				Addresses: []net.IP{net.ParseIP("192.0.2.30")},
				Port:      631,
				Text:      []string{"ty=Acme Laser"},
			},
		},
		initial: []discovery.Event{
			{Kind: discovery.Appeared, ServiceType: discovery.ServiceTypeIPP, Name: "Lab._ipp._tcp.local."},
		},
	}

	ln := localListener(t)
	s, err := New(testConfig(), Deps{Spooler: fakeSpooler{}, Transport: transport, Listener: ln})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runServer(t, s)

	base := "http://" + s.Addr().String()

	var health map[string]interface{}
	if code := getJSON(t, base+"/health", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("GET /health = %d %v", code, health)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Registry().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("discovered printer never reached the registry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var printers []map[string]interface{}
	if code := getJSON(t, base+"/printers", &printers); code != http.StatusOK {
		t.Fatalf("GET /printers status = %d", code)
	}
	if len(printers) != 1 || printers[0]["name"] != "Lab" {
		t.Errorf("printers = %v", printers)
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if got := transport.closeCount(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}
}

func TestRun_DiscoveryFailureIsFatal(t *testing.T) {
	transport := &fakeTransport{browseErr: errors.New("no multicast interface")}
	ln := localListener(t)
	defer ln.Close()

	s, err := New(testConfig(), Deps{Spooler: fakeSpooler{}, Transport: transport, Listener: ln})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no multicast interface") {
		t.Fatalf("Run() error = %v, want discovery failure", err)
	}
	select {
	case <-s.Ready():
		t.Error("server became ready despite discovery failure")
	default:
	}

	transport.mu.Lock()
	closed := transport.closed
	transport.mu.Unlock()
	if closed != 1 {
		t.Errorf("transport closed %d times after failed start, want 1", closed)
	}
}

func TestRun_DiscoveryDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Enabled = false
	transport := &fakeTransport{browseErr: errors.New("must not be used")}

	s, err := New(cfg, Deps{Spooler: fakeSpooler{}, Transport: transport, Listener: localListener(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runServer(t, s)

	if code := getJSON(t, "http://"+s.Addr().String()+"/health", nil); code != http.StatusOK {
		t.Errorf("GET /health status = %d", code)
	}
	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRun_Advertises(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Advertise = true
	cfg.Discovery.AdvertiseName = "Front Office Gateway"
	cfg.Auth.APIKeys = []string{"secret"}

	adv := &fakeAdvertiser{}
	ln := localListener(t)
	port := ln.Addr().(*net.TCPAddr).Port

	s, err := New(cfg, Deps{Spooler: fakeSpooler{}, Transport: &fakeTransport{}, Advertiser: adv, Listener: ln})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runServer(t, s)

	adv.mu.Lock()
	name, gotPort, txt := adv.name, adv.port, strings.Join(adv.txt, ",")
	adv.mu.Unlock()

	if name != "Front Office Gateway" || gotPort != port {
		t.Errorf("advertised %q on %d, want %q on %d", name, gotPort, "Front Office Gateway", port)
	}
	if !strings.Contains(txt, "scheme=http") || !strings.Contains(txt, "auth=true") {
		t.Errorf("txt = %s", txt)
	}
	if !strings.Contains(txt, "commit="+version.Get().Commit) {
		t.Errorf("txt = %s, want the build commit", txt)
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	adv.mu.Lock()
	defer adv.mu.Unlock()
	if adv.shutdown != 1 {
		t.Errorf("advertiser shut down %d times, want 1", adv.shutdown)
	}
}

func TestRun_AdvertiseFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Advertise = true
	adv := &fakeAdvertiser{err: errors.New("port 5353 in use")}

	s, err := New(cfg, Deps{Spooler: fakeSpooler{}, Transport: &fakeTransport{}, Advertiser: adv, Listener: localListener(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := runServer(t, s)
	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	adv.mu.Lock()
	defer adv.mu.Unlock()
	if adv.shutdown != 0 {
		t.Errorf("Shutdown called %d times after failed Advertise", adv.shutdown)
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	missingCert := filepath.Join(dir, "cert.pem")
	missingKey := filepath.Join(dir, "key.pem")

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"invalid config", func(c *config.Config) { c.Server.Port = 0 }, "invalid configuration"},
		{"unknown interface", func(c *config.Config) { c.Discovery.Interfaces = []string{"does-not-exist0"} }, "does-not-exist0"},
		{"missing certificate", func(c *config.Config) {
			c.Server.CertFile = missingCert
			c.Server.KeyFile = missingKey
		}, "TLS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := New(cfg, Deps{Spooler: fakeSpooler{}, Transport: &fakeTransport{}})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewTLSConfig_BadPair(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	for _, p := range []string{cert, key} {
		if err := os.WriteFile(p, []byte("not pem"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := NewTLSConfig(cert, key); err == nil {
		t.Error("NewTLSConfig() accepted an invalid key pair")
	}
}

func TestAddrBeforeRun(t *testing.T) {
	s, err := New(testConfig(), Deps{Spooler: fakeSpooler{}, Transport: &fakeTransport{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if addr := s.Addr(); addr != nil {
		t.Errorf("Addr() = %v before Run, want nil", addr)
	}
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default().Discovery
	cfg.RefreshInterval = 45 * time.Second
	cfg.MissedRounds = 4

	tr := NewTransport(cfg, nil)
	if tr.RefreshInterval != 45*time.Second || tr.MissedRounds != 4 || tr.ResolveTimeout != cfg.ResolveTimeout {
		t.Errorf("transport settings = %v/%d/%v", tr.RefreshInterval, tr.MissedRounds, tr.ResolveTimeout)
	}
}
