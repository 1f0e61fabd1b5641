package discovery

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRecord(key, address string) PrinterRecord {
	return PrinterRecord{
		Key:        key,
		Name:       StripServiceSuffix(key),
		Address:    address,
		Port:       631,
		Properties: map[string]string{"ty": "Test"},
	}
}

func TestRegistry_UpsertRemoveSnapshot(t *testing.T) {
	r := NewRegistry()

	r.Upsert(testRecord("B._ipp._tcp.local.", "10.0.0.2"))
	r.Upsert(testRecord("A._ipp._tcp.local.", "10.0.0.1"))
	r.Upsert(testRecord("A._airprint._tcp.local.", "10.0.0.1"))

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	// Same display name under two service types stays two entries
	if snap[0].Name != "A" || snap[1].Name != "A" {
		t.Errorf("expected both A entries first, got %q and %q", snap[0].Key, snap[1].Key)
	}

	r.Upsert(testRecord("B._ipp._tcp.local.", "10.0.0.9"))
	if got, _ := r.Get("B._ipp._tcp.local."); got.Address != "10.0.0.9" {
		t.Errorf("Upsert did not replace record, address = %q", got.Address)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	if !r.Remove("B._ipp._tcp.local.") {
		t.Error("Remove() of existing key = false, want true")
	}
	if r.Remove("B._ipp._tcp.local.") {
		t.Error("Remove() of unknown key = true, want false")
	}
	if _, ok := r.Get("B._ipp._tcp.local."); ok {
		t.Error("removed key still present")
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	record := testRecord("A._ipp._tcp.local.", "10.0.0.1")
	r.Upsert(record)

	// Mutating the caller's map after Upsert must not leak in
	record.Properties["ty"] = "changed"

	snap := r.Snapshot()
	snap[0].Properties["ty"] = "mutated"

	got, _ := r.Get("A._ipp._tcp.local.")
	if got.Properties["ty"] != "Test" {
		t.Errorf("registry record was mutated through a copy: %q", got.Properties["ty"])
	}
}

func TestRegistry_FindByAddress(t *testing.T) {
	r := NewRegistry()
	r.Upsert(testRecord("A._ipp._tcp.local.", "10.0.0.1"))

	if _, ok := r.FindByAddress("10.0.0.1"); !ok {
		t.Error("FindByAddress() did not find 10.0.0.1")
	}
	if _, ok := r.FindByAddress("10.0.0.2"); ok {
		t.Error("FindByAddress() found unknown address")
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe()
	defer cancel()

	// Several writes coalesce into a single pending notification
	r.Upsert(testRecord("A._ipp._tcp.local.", "10.0.0.1"))
	r.Upsert(testRecord("B._ipp._tcp.local.", "10.0.0.2"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after Upsert")
	}
	select {
	case <-ch:
		t.Fatal("notifications did not coalesce")
	default:
	}

	// Removing an unknown key is not a change
	r.Remove("missing")
	select {
	case <-ch:
		t.Fatal("unexpected notification for no-op Remove")
	default:
	}

	cancel()
	r.Upsert(testRecord("C._ipp._tcp.local.", "10.0.0.3"))
	select {
	case <-ch:
		t.Fatal("notification after unsubscribe")
	default:
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			key := fmt.Sprintf("P%d._ipp._tcp.local.", i%10)
			if i%3 == 0 {
				r.Remove(key)
			} else {
				r.Upsert(testRecord(key, fmt.Sprintf("10.0.0.%d", i%250)))
			}
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, rec := range r.Snapshot() {
					// A record is either complete or absent
					if rec.Name == "" || rec.Address == "" || rec.Port == 0 || rec.Properties == nil {
						t.Errorf("torn record observed: %+v", rec)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
