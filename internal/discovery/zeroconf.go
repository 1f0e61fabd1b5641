package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/printgate/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultRefreshInterval is the length of one browse round
	DefaultRefreshInterval = 30 * time.Second

	// DefaultResolveTimeout bounds a direct instance lookup
	DefaultResolveTimeout = 5 * time.Second

	// DefaultMissedRounds is how many consecutive rounds an instance may be
	// absent before it is reported as removed
	DefaultMissedRounds = 2
)

// ErrNotResolved is returned when an instance could not be resolved in time.
var ErrNotResolved = errors.New("service not resolved")

// mdnsResolver is the subset of *zeroconf.Resolver used by the transport.
type mdnsResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// instanceState is what the transport remembers about one advertised instance.
type instanceState struct {
	serviceType string
	entry       *zeroconf.ServiceEntry
	fingerprint string
	missed      int
}

// ZeroconfTransport is a Transport backed by github.com/grandcat/zeroconf.
//
// zeroconf reports each instance once per browse session and does not report
// withdrawals, so browsing runs in rounds: every round opens a fresh session
// and the result is diffed against the previous rounds to derive
// Appeared, Updated and Removed events.
type ZeroconfTransport struct {
	// RefreshInterval is the length of one browse round
	RefreshInterval time.Duration

	// ResolveTimeout bounds Lookup calls for instances not seen while browsing
	ResolveTimeout time.Duration

	// MissedRounds is the number of silent rounds before an instance is removed
	MissedRounds int

	// Interfaces restricts multicast traffic (all interfaces if empty)
	Interfaces []net.Interface

	newResolver func() (mdnsResolver, error)

	mu     sync.Mutex
	states map[string]*instanceState

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewZeroconfTransport creates a transport with default timings
func NewZeroconfTransport() *ZeroconfTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ZeroconfTransport{
		RefreshInterval: DefaultRefreshInterval,
		ResolveTimeout:  DefaultResolveTimeout,
		MissedRounds:    DefaultMissedRounds,
		states:          make(map[string]*instanceState),
		ctx:             ctx,
		cancel:          cancel,
	}
	t.newResolver = t.defaultResolver
	return t
}

func (t *ZeroconfTransport) defaultResolver() (mdnsResolver, error) {
	var opts []zeroconf.ClientOption
	if len(t.Interfaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(t.Interfaces))
	}
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

func (t *ZeroconfTransport) refreshInterval() time.Duration {
	if t.RefreshInterval <= 0 {
		return DefaultRefreshInterval
	}
	return t.RefreshInterval
}

func (t *ZeroconfTransport) resolveTimeout() time.Duration {
	if t.ResolveTimeout <= 0 {
		return DefaultResolveTimeout
	}
	return t.ResolveTimeout
}

func (t *ZeroconfTransport) missedRounds() int {
	if t.MissedRounds <= 0 {
		return DefaultMissedRounds
	}
	return t.MissedRounds
}

// round is one browse session.
type round struct {
	ctx     context.Context
	cancel  context.CancelFunc
	entries chan *zeroconf.ServiceEntry
}

func (t *ZeroconfTransport) startRound(ctx context.Context, service, domain string) (*round, error) {
	resolver, err := t.newResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, t.refreshInterval())
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(rctx, service, domain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	return &round{ctx: rctx, cancel: cancel, entries: entries}, nil
}

// Browse watches serviceType until ctx is done or the transport is closed.
// The first browse session is opened synchronously so that a broken
// multicast setup is reported to the caller.
func (t *ZeroconfTransport) Browse(ctx context.Context, serviceType string, events chan<- Event) error {
	serviceType = NormalizeServiceType(serviceType)
	service, domain := SplitServiceType(serviceType)

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.ctx, cancel)

	first, err := t.startRound(ctx, service, domain)
	if err != nil {
		stop()
		cancel()
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		defer stop()

		r := first
		for {
			seen := t.collect(ctx, r, serviceType, events)
			r.cancel()
			if ctx.Err() != nil {
				return
			}
			for _, ev := range t.sweep(serviceType, seen) {
				if !emit(ctx, events, ev) {
					return
				}
			}

			r = nil
			for r == nil {
				next, err := t.startRound(ctx, service, domain)
				if err == nil {
					r = next
					break
				}
				logging.Warn("mDNS browse round failed",
					zap.String("service_type", serviceType),
					zap.Error(err),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(t.refreshInterval()):
				}
			}
		}
	}()

	return nil
}

// collect drains one round and returns the instance names seen in it.
func (t *ZeroconfTransport) collect(ctx context.Context, r *round, serviceType string, events chan<- Event) map[string]bool {
	seen := make(map[string]bool)
	for {
		select {
		case <-r.ctx.Done():
			return seen
		case entry, ok := <-r.entries:
			if !ok {
				return seen
			}
			if entry == nil {
				continue
			}
			seen[entry.ServiceInstanceName()] = true
			if ev, changed := t.observe(serviceType, entry); changed {
				if !emit(ctx, events, ev) {
					return seen
				}
			}
		}
	}
}

// observe records entry and reports the event it implies, if any.
func (t *ZeroconfTransport) observe(serviceType string, entry *zeroconf.ServiceEntry) (Event, bool) {
	name := entry.ServiceInstanceName()

	t.mu.Lock()
	defer t.mu.Unlock()

	state, known := t.states[name]

	if entry.TTL == 0 {
		if !known {
			return Event{}, false
		}
		delete(t.states, name)
		return Event{Kind: Removed, ServiceType: serviceType, Name: name}, true
	}

	fp := fingerprint(entry)
	if !known {
		t.states[name] = &instanceState{serviceType: serviceType, entry: entry, fingerprint: fp}
		return Event{Kind: Appeared, ServiceType: serviceType, Name: name}, true
	}

	state.missed = 0
	if state.fingerprint == fp {
		return Event{}, false
	}
	state.entry = entry
	state.fingerprint = fp
	return Event{Kind: Updated, ServiceType: serviceType, Name: name}, true
}

// sweep ages instances of serviceType that were not seen in the last round.
func (t *ZeroconfTransport) sweep(serviceType string, seen map[string]bool) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Event
	for name, state := range t.states {
		if state.serviceType != serviceType || seen[name] {
			continue
		}
		state.missed++
		if state.missed >= t.missedRounds() {
			delete(t.states, name)
			removed = append(removed, Event{Kind: Removed, ServiceType: serviceType, Name: name})
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Name < removed[j].Name })
	return removed
}

// Resolve returns service info for name, from the browse cache when possible
// and otherwise through a bounded mDNS lookup.
func (t *ZeroconfTransport) Resolve(ctx context.Context, serviceType, name string) (*ServiceInfo, error) {
	t.mu.Lock()
	state, ok := t.states[name]
	var cached *zeroconf.ServiceEntry
	if ok {
		cached = state.entry
	}
	t.mu.Unlock()

	if cached != nil {
		return entryToInfo(cached), nil
	}

	resolver, err := t.newResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, t.resolveTimeout())
	defer cancel()

	service, domain := SplitServiceType(serviceType)
	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Lookup(lctx, InstanceName(name, serviceType), service, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}

	for {
		select {
		case <-lctx.Done():
			return nil, fmt.Errorf("%s: %w", name, ErrNotResolved)
		case entry, ok := <-entries:
			if !ok {
				return nil, fmt.Errorf("%s: %w", name, ErrNotResolved)
			}
			if entry == nil || (len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0) {
				continue
			}
			return entryToInfo(entry), nil
		}
	}
}

// Close stops every browse loop started by this transport.
func (t *ZeroconfTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.wg.Wait()
	})
	return nil
}

// entryToInfo converts a zeroconf service entry into ServiceInfo.
func entryToInfo(entry *zeroconf.ServiceEntry) *ServiceInfo {
	addrs := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	addrs = append(addrs, entry.AddrIPv4...)
	addrs = append(addrs, entry.AddrIPv6...)

	text := make([]string, len(entry.Text))
	copy(text, entry.Text)

	return &ServiceInfo{
		Name:      entry.ServiceInstanceName(),
		HostName:  entry.HostName,
		Addresses: addrs,
		Port:      entry.Port,
		Text:      text,
	}
}

// fingerprint summarises the parts of an entry that make up a PrinterRecord.
func fingerprint(entry *zeroconf.ServiceEntry) string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	sort.Strings(addrs)

	text := append([]string(nil), entry.Text...)
	sort.Strings(text)

	return strings.Join([]string{
		entry.HostName,
		strconv.Itoa(entry.Port),
		strings.Join(addrs, ","),
		strings.Join(text, "\x00"),
	}, "|")
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// InterfacesByName resolves interface names for ZeroconfTransport.Interfaces.
func InterfacesByName(names []string) ([]net.Interface, error) {
	ifaces := make([]net.Interface, 0, len(names))
	for _, name := range names {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("unknown network interface %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}
