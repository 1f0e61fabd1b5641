package discovery

import (
	"sort"
	"sync"
)

// Registry holds the network printers currently advertised on the LAN.
//
// Writes come from a single Listener; reads come from any number of HTTP
// handlers. Records are copied in and out so a reader never observes a
// partially written record.
type Registry struct {
	mu       sync.RWMutex
	printers map[string]PrinterRecord

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		printers: make(map[string]PrinterRecord),
		subs:     make(map[int]chan struct{}),
	}
}

// Upsert inserts or replaces the record stored under record.Key.
func (r *Registry) Upsert(record PrinterRecord) {
	record = record.clone()

	r.mu.Lock()
	r.printers[record.Key] = record
	r.mu.Unlock()

	r.notify()
}

// Remove deletes key from the registry. It reports whether the key was present.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	_, ok := r.printers[key]
	delete(r.printers, key)
	r.mu.Unlock()

	if ok {
		r.notify()
	}
	return ok
}

// Get returns the record stored under key.
func (r *Registry) Get(key string) (PrinterRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.printers[key]
	if !ok {
		return PrinterRecord{}, false
	}
	return record.clone(), true
}

// Len returns the number of known printers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.printers)
}

// Snapshot returns a point-in-time copy of every record, sorted by key.
func (r *Registry) Snapshot() []PrinterRecord {
	r.mu.RLock()
	records := make([]PrinterRecord, 0, len(r.printers))
	for _, record := range r.printers {
		records = append(records, record.clone())
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}

// FindByAddress returns the first record (by key order) advertised at address.
func (r *Registry) FindByAddress(address string) (PrinterRecord, bool) {
	for _, record := range r.Snapshot() {
		if record.Address == address {
			return record, true
		}
	}
	return PrinterRecord{}, false
}

// Subscribe returns a channel that receives a value after registry changes.
// Notifications coalesce: a slow subscriber sees at most one pending signal.
// The returned function unsubscribes and must be called once.
func (r *Registry) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
