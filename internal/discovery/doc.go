// Package discovery keeps a live registry of network printers found through
// multicast DNS (DNS-SD).
//
// Printers advertise themselves under "_ipp._tcp.local." and
// "_airprint._tcp.local.". The package watches both service types and keeps
// one PrinterRecord per advertised instance name.
//
// # Components
//
//   - Transport: browses service types and pushes typed Events
//     (Appeared, Updated, Removed) onto a channel. ZeroconfTransport is the
//     production implementation built on github.com/grandcat/zeroconf.
//   - Listener: the single consumer of the event channel. It resolves the
//     instance outside any lock and then upserts or removes the record.
//   - Registry: the shared map read by HTTP handlers. A single RWMutex
//     guards it; snapshots are deep copies.
//   - Controller: starts and stops browsing and owns the lifecycle.
//
// # Usage Example
//
//	registry := discovery.NewRegistry()
//	controller := discovery.NewController(discovery.NewZeroconfTransport(), registry, nil)
//	if err := controller.Start(ctx); err != nil {
//	    log.Fatal(err) // multicast unavailable
//	}
//	defer controller.Stop()
//
//	for _, p := range registry.Snapshot() {
//	    fmt.Printf("%s at %s:%d\n", p.Name, p.Address, p.Port)
//	}
//
// # Record Lifecycle
//
// A record is created when an Appeared event resolves to at least one
// address, replaced on Updated, and deleted on Removed. An event that does
// not resolve leaves the registry untouched; a later Updated may succeed.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Printers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
