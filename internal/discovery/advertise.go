package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/printgate/internal/logging"
	"go.uber.org/zap"
)

// GatewayServiceType is the service type the gateway advertises itself under
const GatewayServiceType = "_http._tcp"

// Advertiser announces the gateway on the local network so clients can
// find it without configuration.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise registers name on port with the given TXT records.
func (a *Advertiser) Advertise(name string, port int, txt []string, ifaces []net.Interface) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return fmt.Errorf("gateway already advertised")
	}

	server, err := zeroconf.Register(name, GatewayServiceType, DefaultDomain, port, txt, ifaces)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server

	logging.Info("Gateway advertised over mDNS",
		zap.String("instance", name),
		zap.String("service_type", GatewayServiceType),
		zap.Int("port", port),
	)
	return nil
}

// Shutdown withdraws the advertisement. It is safe to call when nothing is advertised.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		logging.Info("Gateway advertisement withdrawn")
	}
}
