package client

import "time"

// Printer types reported by the gateway
const (
	TypeLocal   = "local"
	TypeNetwork = "network"
)

// Event message types sent on /events
const (
	EventPrinters = "printers"
	EventPing     = "ping"
)

// Health is the response of GET /health.
type Health struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Commit          string `json:"commit,omitempty"`
	GoVersion       string `json:"go_version,omitempty"`
	NetworkPrinters int    `json:"network_printers"`
}

// Printer is a local queue or a discovered network printer.
type Printer struct {
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Type       string            `json:"type"`
	Port       int               `json:"port,omitempty"`
	State      string            `json:"state,omitempty"`
	Location   string            `json:"location,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// IsNetwork reports whether the printer was found by discovery
func (p Printer) IsNetwork() bool {
	return p.Type == TypeNetwork
}

// AddPrinterRequest registers a network printer as a local queue.
// Manufacturer, Location and Info are optional; the gateway fills them from
// discovery when the address belongs to a discovered printer.
type AddPrinterRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Location     string `json:"location,omitempty"`
	Info         string `json:"info,omitempty"`
}

// PrintRequest describes a PDF upload.
type PrintRequest struct {
	Printer string
	Path    string
	Title   string            // defaults to the file name on the gateway
	Options map[string]string // IPP job attributes, e.g. "copies": "2"
}

// PrintResult is the response of POST /print.
type PrintResult struct {
	Message string `json:"message"`
	JobID   int    `json:"job_id"`
}

// JobStatus is the response of GET /job_status/{job_id}.
type JobStatus struct {
	Status  string `json:"status"`
	Printer string `json:"printer"`
	JobID   int    `json:"job_id"`
}

// Finished reports whether the job reached a terminal state
func (j JobStatus) Finished() bool {
	switch j.Status {
	case "completed", "canceled", "aborted":
		return true
	}
	return false
}

// Event is a message from the live printer stream.
type Event struct {
	Type      string    `json:"type"`
	Printers  []Printer `json:"printers,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
