package discovery

import (
	"context"

	"github.com/muurk/printgate/internal/logging"
	"go.uber.org/zap"
)

// Resolver turns an advertised instance name into full service info.
type Resolver interface {
	Resolve(ctx context.Context, serviceType, name string) (*ServiceInfo, error)
}

// Observer receives registry activity, typically a metrics sink.
type Observer interface {
	DiscoveryEvent(kind string)
	NetworkPrinters(count int)
}

// Listener applies discovery events to a Registry.
//
// Run is the only writer of the registry. Resolution happens outside the
// registry lock; only the final Upsert or Remove takes it.
type Listener struct {
	registry *Registry
	resolver Resolver
	observer Observer
}

// NewListener creates a listener writing into registry
func NewListener(registry *Registry, resolver Resolver) *Listener {
	return &Listener{
		registry: registry,
		resolver: resolver,
	}
}

// SetObserver attaches an observer for applied events
func (l *Listener) SetObserver(o Observer) {
	l.observer = o
}

// Run consumes events until ctx is cancelled or events is closed.
func (l *Listener) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.Handle(ctx, ev)
		}
	}
}

// Handle applies a single event.
func (l *Listener) Handle(ctx context.Context, ev Event) {
	logging.LogDiscoveryEvent(ev.Kind.String(), ev.ServiceType, ev.Name)

	switch ev.Kind {
	case Appeared, Updated:
		l.resolveAndStore(ctx, ev)
	case Removed:
		if l.registry.Remove(ev.Name) {
			logging.Info("Network printer removed", zap.String("name", ev.Name))
		}
	default:
		logging.Warn("Ignoring unknown discovery event", zap.Stringer("event", ev))
		return
	}

	if l.observer != nil {
		l.observer.DiscoveryEvent(ev.Kind.String())
		l.observer.NetworkPrinters(l.registry.Len())
	}
}

func (l *Listener) resolveAndStore(ctx context.Context, ev Event) {
	info, err := l.resolver.Resolve(ctx, ev.ServiceType, ev.Name)
	if err != nil {
		logging.Debug("Service not resolvable yet",
			zap.String("name", ev.Name),
			zap.String("service_type", ev.ServiceType),
			zap.Error(err),
		)
		return
	}
	if info == nil {
		return
	}

	record, ok := NewRecord(ev.Name, ev.ServiceType, info)
	if !ok {
		logging.Debug("Service resolved without a usable address",
			zap.String("name", ev.Name),
			zap.Int("port", info.Port),
		)
		return
	}

	l.registry.Upsert(record)
	logging.Info("Network printer "+ev.Kind.String(),
		zap.String("name", record.Name),
		zap.String("address", record.Address),
		zap.Int("port", record.Port),
	)
}
