package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/printgate/internal/config"
	"github.com/muurk/printgate/internal/discovery"
	"github.com/muurk/printgate/internal/gateway"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/metrics"
	"github.com/muurk/printgate/internal/spooler"
	"github.com/muurk/printgate/internal/version"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// ShutdownTimeout bounds the graceful HTTP shutdown
	ShutdownTimeout = 10 * time.Second

	// SweepInterval is how often idle rate-limit entries are evicted
	SweepInterval = 10 * time.Minute
)

// Advertiser announces the gateway over mDNS.
type Advertiser interface {
	Advertise(name string, port int, txt []string, ifaces []net.Interface) error
	Shutdown()
}

// Deps overrides the collaborators New would otherwise build from the
// configuration. Zero fields get the production implementation.
type Deps struct {
	Spooler    spooler.Spooler
	Transport  discovery.Transport
	Advertiser Advertiser
	Metrics    *metrics.Metrics

	// Listener is served instead of listening on cfg.Server.Addr()
	Listener net.Listener
}

// Server is the printgate process: discovery, the HTTP API and their
// shared registry.
type Server struct {
	cfg        *config.Config
	registry   *discovery.Registry
	controller *discovery.Controller
	advertiser Advertiser
	ifaces     []net.Interface
	limiter    *gateway.RateLimiter
	metrics    *metrics.Metrics
	httpServer *http.Server
	tlsConfig  *tls.Config

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New builds a server from cfg. Nothing is started until Run.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	sp := deps.Spooler
	if sp == nil {
		sp = spooler.NewCUPS(spooler.Config{
			Host:     cfg.CUPS.Host,
			Port:     cfg.CUPS.Port,
			Username: cfg.CUPS.Username,
			Password: cfg.CUPS.Password,
			UseTLS:   cfg.CUPS.UseTLS,
		})
	}

	ifaces, err := discovery.InterfacesByName(cfg.Discovery.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("failed to select discovery interfaces: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		registry: discovery.NewRegistry(),
		ifaces:   ifaces,
		limiter:  gateway.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerDay),
		metrics:  m,
		listener: deps.Listener,
		ready:    make(chan struct{}),
	}

	if cfg.Discovery.Enabled {
		transport := deps.Transport
		if transport == nil {
			transport = NewTransport(cfg.Discovery, ifaces)
		}
		s.controller = discovery.NewController(transport, s.registry, cfg.Discovery.ServiceTypes)
		s.controller.Listener().SetObserver(m)

		if cfg.Discovery.Advertise {
			s.advertiser = deps.Advertiser
			if s.advertiser == nil {
				s.advertiser = &discovery.Advertiser{}
			}
		}
	}

	auth, err := gateway.NewKeyAuthenticator(cfg.Auth.APIKeys, cfg.Server.SecretKey)
	if err != nil {
		return nil, err
	}

	handler := gateway.NewHandler(sp, s.registry, m, gateway.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		TempDir:        cfg.Server.TempDir,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	router := gateway.NewRouter(handler, gateway.RouterConfig{
		Auth:           auth,
		Limiter:        s.limiter,
		CORSOrigins:    cfg.Server.CORSOrigins,
		LegacyAPI:      cfg.Server.LegacyAPI,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	if cfg.Server.TLSEnabled() {
		s.tlsConfig, err = NewTLSConfig(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		TLSConfig:         s.tlsConfig,
		ErrorLog:          zap.NewStdLog(logging.GetLogger()),
	}

	return s, nil
}

// NewTransport builds the zeroconf transport described by cfg.
func NewTransport(cfg config.DiscoveryConfig, ifaces []net.Interface) *discovery.ZeroconfTransport {
	t := discovery.NewZeroconfTransport()
	t.RefreshInterval = cfg.RefreshInterval
	t.ResolveTimeout = cfg.ResolveTimeout
	t.MissedRounds = cfg.MissedRounds
	t.Interfaces = ifaces
	return t
}

// Registry returns the network printer registry
func (s *Server) Registry() *discovery.Registry {
	return s.registry
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Ready is closed once the server accepts connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address being served, or nil before Run has started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts discovery and serves the API until ctx is canceled. A discovery
// failure at startup is returned before anything is served, after the
// discovery transport has been released.
func (s *Server) Run(ctx context.Context) error {
	if s.controller != nil {
		defer func() {
			if err := s.controller.Stop(); err != nil {
				logging.Warn("Error stopping discovery", zap.Error(err))
			}
		}()
		if err := s.controller.Start(ctx); err != nil {
			return fmt.Errorf("failed to start discovery: %w", err)
		}
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}

	if s.advertiser != nil {
		if err := s.advertise(ln.Addr()); err != nil {
			logging.Warn("Failed to advertise gateway", zap.Error(err))
		} else {
			defer s.advertiser.Shutdown()
		}
	}

	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	logging.Info("Starting printgate",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
		zap.Bool("discovery", s.controller != nil),
		zap.Bool("auth", len(s.cfg.Auth.APIKeys) > 0),
		zap.Bool("legacy_api", s.cfg.Server.LegacyAPI),
		zap.String("version", version.Version),
	)
	if s.tlsConfig != nil {
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		close(s.ready)
		var err error
		if s.tlsConfig != nil {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	})

	g.Go(func() error {
		return s.limiter.Run(gctx, SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
			return s.httpServer.Close()
		}
		logging.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.Run(ctx)
	logging.Sync()
	return err
}

func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener, nil
	}
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr(), err)
	}
	s.listener = ln
	return ln, nil
}

// advertise announces the gateway with its API location in the TXT record.
func (s *Server) advertise(addr net.Addr) error {
	port := s.cfg.Server.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}

	scheme := "http"
	if s.tlsConfig != nil {
		scheme = "https"
	}
	txt := append([]string{
		"path=/",
		"scheme=" + scheme,
		"auth=" + strconv.FormatBool(len(s.cfg.Auth.APIKeys) > 0),
	}, version.Get().TXT()...)

	name := s.cfg.Discovery.AdvertiseName
	if name == "" {
		name = "printgate"
	}
	return s.advertiser.Advertise(name, port, txt, s.ifaces)
}
