package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	mu        sync.Mutex
	infos     map[string]*ServiceInfo
	browseErr error
	browsed   []string
	events    chan<- Event
	closed    int

	// initial is sent on every Browse call
	initial []Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{infos: make(map[string]*ServiceInfo)}
}

func (f *fakeTransport) Browse(ctx context.Context, serviceType string, events chan<- Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browseErr != nil {
		return f.browseErr
	}
	f.browsed = append(f.browsed, serviceType)
	f.events = events
	initial := append([]Event(nil), f.initial...)
	go func() {
		for _, ev := range initial {
			if ev.ServiceType != serviceType {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (f *fakeTransport) Resolve(ctx context.Context, serviceType, name string) (*ServiceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[name]
	if !ok {
		return nil, ErrNotResolved
	}
	return info, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) setInfo(name string, info *ServiceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info == nil {
		delete(f.infos, name)
		return
	}
	f.infos[name] = info
}

func (f *fakeTransport) push(ev Event) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events <- ev
}

func printerInfo(ip string, port int, text ...string) *ServiceInfo {
	return &ServiceInfo{
		Addresses: []net.IP{net.ParseIP(ip)},
		Port:      port,
		Text:      text,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
