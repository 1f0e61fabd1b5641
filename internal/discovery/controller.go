package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/muurk/printgate/internal/logging"
	"go.uber.org/zap"
)

// Transport is the mDNS side of discovery: it browses service types,
// pushes typed events and resolves instances on demand.
type Transport interface {
	Resolver

	// Browse starts watching serviceType and sends events until ctx is done.
	// It returns once browsing has started; a non-nil error means the
	// transport could not be opened.
	Browse(ctx context.Context, serviceType string, events chan<- Event) error

	// Close releases sockets and multicast memberships.
	Close() error
}

// eventBuffer bounds the queue between the transport and the listener.
const eventBuffer = 64

// Controller owns the registry, the listener and the transport for the
// lifetime of the process.
type Controller struct {
	transport    Transport
	registry     *Registry
	listener     *Listener
	serviceTypes []string

	events   chan Event
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// NewController creates a controller watching serviceTypes (DefaultServiceTypes if empty).
func NewController(transport Transport, registry *Registry, serviceTypes []string) *Controller {
	if len(serviceTypes) == 0 {
		serviceTypes = DefaultServiceTypes
	}
	normalized := make([]string, 0, len(serviceTypes))
	for _, st := range serviceTypes {
		normalized = append(normalized, NormalizeServiceType(st))
	}

	return &Controller{
		transport:    transport,
		registry:     registry,
		listener:     NewListener(registry, transport),
		serviceTypes: normalized,
	}
}

// Registry returns the registry maintained by the controller
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Listener returns the listener so callers can attach an Observer before Start.
func (c *Controller) Listener() *Listener {
	return c.listener
}

// ServiceTypes returns the watched service types
func (c *Controller) ServiceTypes() []string {
	return c.serviceTypes
}

// Start begins browsing every watched service type. It must be called once.
// An error means the discovery transport could not be opened and is fatal.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.events = make(chan Event, eventBuffer)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.listener.Run(ctx, c.events)
	}()

	for _, st := range c.serviceTypes {
		if err := c.transport.Browse(ctx, st, c.events); err != nil {
			cancel()
			c.wg.Wait()
			return fmt.Errorf("failed to browse %s: %w", st, err)
		}
		logging.Info("Browsing for printers", zap.String("service_type", st))
	}

	return nil
}

// Stop cancels browsing, waits for the listener and closes the transport.
// Extra calls return the result of the first one.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		if err := c.transport.Close(); err != nil {
			c.stopErr = fmt.Errorf("failed to close discovery transport: %w", err)
		}
		logging.Info("Discovery stopped")
	})
	return c.stopErr
}
