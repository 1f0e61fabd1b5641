package discovery

import "fmt"

// EventKind is the kind of change reported by the discovery transport
type EventKind int

const (
	// Appeared is sent the first time an instance is seen
	Appeared EventKind = iota
	// Updated is sent when a known instance re-advertises with new data
	Updated
	// Removed is sent when an instance withdraws or expires
	Removed
)

// String returns the lower-case name of the kind
func (k EventKind) String() string {
	switch k {
	case Appeared:
		return "appeared"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a typed discovery notification pushed by a Transport.
type Event struct {
	Kind        EventKind
	ServiceType string
	Name        string
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s (%s)", e.Kind, e.Name, e.ServiceType)
}
