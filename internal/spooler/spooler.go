package spooler

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoPrinter is returned when a print job names no destination
var ErrNoPrinter = errors.New("no printer specified")

// Spooler is the local print subsystem as seen by the HTTP handlers.
type Spooler interface {
	// Printers lists the queues configured on the print server
	Printers() ([]LocalPrinter, error)

	// PPDs lists the printer drivers the print server can install
	PPDs() ([]PPD, error)

	// AddPrinter creates a queue, enables it and makes it accept jobs
	AddPrinter(reg Registration) error

	// PrintFile submits the file at path to printer and returns the job id
	PrintFile(printer, path, title string, options map[string]string) (int, error)

	// Jobs lists every job the print server knows, completed ones included
	Jobs() ([]Job, error)
}

// LocalPrinter is a queue configured on the print server.
type LocalPrinter struct {
	Name         string `json:"name"`
	State        int    `json:"state"`
	StateLabel   string `json:"state_label"`
	StateMessage string `json:"state_message,omitempty"`
	Location     string `json:"location,omitempty"`
	Info         string `json:"info,omitempty"`
	DeviceURI    string `json:"device_uri,omitempty"`
}

// PPD is an installable driver.
type PPD struct {
	Name         string `json:"name"`
	MakeAndModel string `json:"make_and_model"`
}

// Registration describes a queue to create.
type Registration struct {
	Name      string
	DeviceURI string
	PPD       string
	Location  string
	Info      string
	Shared    bool
}

// Job is a print job known to the print server.
type Job struct {
	ID      int    `json:"job_id"`
	Printer string `json:"printer"`
	State   int    `json:"state"`
	Name    string `json:"name,omitempty"`
}

// Status returns the label for the job state
func (j Job) Status() string {
	return JobStateLabel(j.State)
}

// FindJob returns the job with id from jobs.
func FindJob(jobs []Job, id int) (Job, bool) {
	for _, job := range jobs {
		if job.ID == id {
			return job, true
		}
	}
	return Job{}, false
}

// ConvertOptions turns string job options into typed IPP attribute values.
// Integers become int, "true" and "false" become bool, anything else stays
// a string. Keys are trimmed and empty keys dropped.
func ConvertOptions(options map[string]string) map[string]interface{} {
	converted := make(map[string]interface{}, len(options))
	for key, value := range options {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)

		if n, err := strconv.Atoi(value); err == nil {
			converted[key] = n
			continue
		}
		switch strings.ToLower(value) {
		case "true":
			converted[key] = true
		case "false":
			converted[key] = false
		default:
			converted[key] = value
		}
	}
	return converted
}
