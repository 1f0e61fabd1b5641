package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

// scriptedResolver replays one slice of entries per browse round. Once the
// script runs out, rounds stay open until their context ends.
type scriptedResolver struct {
	mu      sync.Mutex
	rounds  [][]*zeroconf.ServiceEntry
	lookups map[string]*zeroconf.ServiceEntry
	looked  []string
}

func (s *scriptedResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	s.mu.Lock()
	var batch []*zeroconf.ServiceEntry
	scripted := len(s.rounds) > 0
	if scripted {
		batch = s.rounds[0]
		s.rounds = s.rounds[1:]
	}
	s.mu.Unlock()

	go func() {
		defer close(entries)
		for _, e := range batch {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
		if !scripted {
			<-ctx.Done()
		}
	}()
	return nil
}

func (s *scriptedResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	s.mu.Lock()
	s.looked = append(s.looked, instance)
	entry := s.lookups[instance]
	s.mu.Unlock()

	go func() {
		defer close(entries)
		if entry != nil {
			entries <- entry
		}
		<-ctx.Done()
	}()
	return nil
}

func ippEntry(instance, ip string, ttl uint32, text ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, "_ipp._tcp", "local.")
	entry.HostName = instance + ".local."
	entry.Port = 631
	entry.TTL = ttl
	entry.Text = text
	entry.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	return entry
}

func newScriptedTransport(resolver *scriptedResolver) *ZeroconfTransport {
	t := NewZeroconfTransport()
	t.RefreshInterval = time.Minute
	t.ResolveTimeout = 200 * time.Millisecond
	t.MissedRounds = 2
	t.newResolver = func() (mdnsResolver, error) { return resolver, nil }
	return t
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for discovery event")
		return Event{}
	}
}

func TestZeroconfTransport_RoundsProduceEvents(t *testing.T) {
	resolver := &scriptedResolver{
		rounds: [][]*zeroconf.ServiceEntry{
			{ippEntry("A", "10.0.0.1", 120, "ty=Alpha"), ippEntry("B", "10.0.0.2", 120)},
			{ippEntry("A", "10.0.0.1", 120, "ty=Alpha", "note=moved")},
			{},
			{},
		},
	}
	transport := newScriptedTransport(resolver)
	defer transport.Close()

	events := make(chan Event, 16)
	if err := transport.Browse(context.Background(), "_ipp._tcp", events); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	want := []Event{
		{Kind: Appeared, ServiceType: ServiceTypeIPP, Name: "A._ipp._tcp.local."},
		{Kind: Appeared, ServiceType: ServiceTypeIPP, Name: "B._ipp._tcp.local."},
		{Kind: Updated, ServiceType: ServiceTypeIPP, Name: "A._ipp._tcp.local."},
		{Kind: Removed, ServiceType: ServiceTypeIPP, Name: "B._ipp._tcp.local."},
		{Kind: Removed, ServiceType: ServiceTypeIPP, Name: "A._ipp._tcp.local."},
	}
	for i, w := range want {
		if got := nextEvent(t, events); got != w {
			t.Errorf("event %d = %v, want %v", i, got, w)
		}
	}
}

func TestZeroconfTransport_GoodbyeRemovesImmediately(t *testing.T) {
	resolver := &scriptedResolver{
		rounds: [][]*zeroconf.ServiceEntry{
			{ippEntry("A", "10.0.0.1", 120), ippEntry("A", "10.0.0.1", 0)},
		},
	}
	transport := newScriptedTransport(resolver)
	defer transport.Close()

	events := make(chan Event, 16)
	if err := transport.Browse(context.Background(), ServiceTypeIPP, events); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	if ev := nextEvent(t, events); ev.Kind != Appeared {
		t.Errorf("first event = %v, want appeared", ev)
	}
	if ev := nextEvent(t, events); ev.Kind != Removed {
		t.Errorf("second event = %v, want removed", ev)
	}
}

func TestZeroconfTransport_BrowseErrorOnBrokenResolver(t *testing.T) {
	transport := NewZeroconfTransport()
	transport.newResolver = func() (mdnsResolver, error) { return nil, errors.New("no multicast interface") }
	defer transport.Close()

	if err := transport.Browse(context.Background(), ServiceTypeIPP, make(chan Event)); err == nil {
		t.Error("Browse() error = nil, want error")
	}
}

func TestZeroconfTransport_Resolve(t *testing.T) {
	resolver := &scriptedResolver{
		rounds: [][]*zeroconf.ServiceEntry{
			{ippEntry("Cached", "10.0.0.5", 120, "ty=Cached")},
		},
		lookups: map[string]*zeroconf.ServiceEntry{
			"Direct": ippEntry("Direct", "10.0.0.6", 120, "ty=Direct"),
		},
	}
	transport := newScriptedTransport(resolver)
	defer transport.Close()

	events := make(chan Event, 16)
	if err := transport.Browse(context.Background(), ServiceTypeIPP, events); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	nextEvent(t, events)

	ctx := context.Background()

	info, err := transport.Resolve(ctx, ServiceTypeIPP, "Cached._ipp._tcp.local.")
	if err != nil {
		t.Fatalf("Resolve(cached) error = %v", err)
	}
	if info.FirstAddress() != "10.0.0.5" || info.Port != 631 {
		t.Errorf("Resolve(cached) = %+v", info)
	}

	info, err = transport.Resolve(ctx, ServiceTypeIPP, "Direct._ipp._tcp.local.")
	if err != nil {
		t.Fatalf("Resolve(direct) error = %v", err)
	}
	if info.FirstAddress() != "10.0.0.6" {
		t.Errorf("Resolve(direct) address = %q", info.FirstAddress())
	}

	_, err = transport.Resolve(ctx, ServiceTypeIPP, "Missing._ipp._tcp.local.")
	if !errors.Is(err, ErrNotResolved) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotResolved", err)
	}

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	if len(resolver.looked) != 2 || resolver.looked[0] != "Direct" || resolver.looked[1] != "Missing" {
		t.Errorf("lookups = %v, want [Direct Missing]", resolver.looked)
	}
}

func TestFingerprint(t *testing.T) {
	a := ippEntry("A", "10.0.0.1", 120, "b=2", "a=1")
	b := ippEntry("A", "10.0.0.1", 60, "a=1", "b=2")
	if fingerprint(a) != fingerprint(b) {
		t.Error("fingerprint depends on TXT order or TTL")
	}

	c := ippEntry("A", "10.0.0.2", 120, "a=1", "b=2")
	if fingerprint(a) == fingerprint(c) {
		t.Error("fingerprint ignores address change")
	}
}
