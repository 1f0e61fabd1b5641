package gateway

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/metrics"
	"github.com/muurk/printgate/internal/spooler"
)

// LegacyPrefix is where the first API revision is mounted
const LegacyPrefix = "/v0"

// legacyJobTitle is the title given to raw-body print jobs
const legacyJobTitle = "Web Print Job"

// LegacyLocalPrinter is a local queue as reported by GET /v0/printers.
type LegacyLocalPrinter struct {
	PrinterState        int    `json:"printer-state"`
	PrinterStateMessage string `json:"printer-state-message"`
	PrinterLocation     string `json:"printer-location"`
	PrinterInfo         string `json:"printer-info"`
	DeviceURI           string `json:"device-uri"`
}

// LegacyNetworkPrinter is a discovered printer as reported by GET /v0/printers.
type LegacyNetworkPrinter struct {
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Port       int               `json:"port"`
	Properties map[string]string `json:"properties"`
}

// LegacyPrinters is the body of GET /v0/printers. Network printers are keyed
// by their full advertised service name.
type LegacyPrinters struct {
	Local   map[string]LegacyLocalPrinter   `json:"local"`
	Network map[string]LegacyNetworkPrinter `json:"network"`
}

// LegacyJobStatus is the body of GET /v0/job/{job_id}.
type LegacyJobStatus struct {
	Status  int    `json:"status"`
	Printer string `json:"printer"`
	JobID   int    `json:"job_id"`
}

// LegacyAddRequest is the body of POST /v0/printers/add.
type LegacyAddRequest struct {
	Printer *LegacyNetworkPrinter `json:"printer"`
}

// deprecated marks every legacy response.
func deprecated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Deprecation", "true")
		w.Header().Set("Link", `</printers>; rel="successor-version"`)
		next.ServeHTTP(w, r)
	})
}

// LegacyListPrinters serves GET /v0/printers.
func (h *Handler) LegacyListPrinters(w http.ResponseWriter, r *http.Request) {
	local, err := h.spooler.Printers()
	if err != nil {
		writeError(w, NewSubsystemError(err))
		return
	}

	body := LegacyPrinters{
		Local:   make(map[string]LegacyLocalPrinter, len(local)),
		Network: make(map[string]LegacyNetworkPrinter),
	}
	for _, p := range local {
		body.Local[p.Name] = LegacyLocalPrinter{
			PrinterState:        p.State,
			PrinterStateMessage: p.StateMessage,
			PrinterLocation:     p.Location,
			PrinterInfo:         p.Info,
			DeviceURI:           p.DeviceURI,
		}
	}
	for _, rec := range h.registry.Snapshot() {
		body.Network[rec.Key] = LegacyNetworkPrinter{
			Name:       rec.Name,
			Address:    rec.Address,
			Port:       rec.Port,
			Properties: rec.Properties,
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// LegacyAddPrinter serves POST /v0/printers/add. The driver hint, info and
// location come from the submitted TXT properties.
func (h *Handler) LegacyAddPrinter(w http.ResponseWriter, r *http.Request) {
	var req LegacyAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := req.Printer
	if p == nil {
		writeError(w, NewValidationError("printer is required"))
		return
	}

	p.Name = strings.TrimSpace(p.Name)
	if err := ValidatePrinterName(p.Name); err != nil {
		writeError(w, err)
		return
	}
	if err := ValidateAddress(p.Address); err != nil {
		writeError(w, err)
		return
	}
	if p.Port < 1 || p.Port > 65535 {
		writeError(w, NewValidationError("printer port must be between 1 and 65535"))
		return
	}

	props := p.Properties
	reg := spooler.Registration{
		Name:      p.Name,
		DeviceURI: "ipp://" + joinHostPort(p.Address, p.Port) + "/ipp/print",
		Info:      props["note"],
		Location:  props["location"],
	}

	if err := h.register(reg, props["manufacturer"]); err != nil {
		h.metrics.ObservePrinterAdded(false)
		writeError(w, err)
		return
	}
	h.metrics.ObservePrinterAdded(true)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Printer added successfully"})
}

// joinHostPort always includes the port, bracketing IPv6 literals.
func joinHostPort(host string, port int) string {
	host = strings.Trim(host, "[]")
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

// LegacyPrint serves POST /v0/print: the request body is the PDF itself and
// the printer is named by the Printer-Name header.
func (h *Handler) LegacyPrint(w http.ResponseWriter, r *http.Request) {
	printer := strings.TrimSpace(r.Header.Get("Printer-Name"))
	if printer == "" {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, NewValidationError("Printer name not specified"))
		return
	}
	if err := ValidatePrinterName(printer); err != nil {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, err)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/pdf" {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, NewValidationError("Only PDF files are supported"))
		return
	}

	options, err := parseOptions(r.Header.Get("Print-Options"))
	if err != nil {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, err)
		return
	}

	jobID, size, err := h.spool(r.Body, printer, legacyJobTitle, options)
	logging.LogPrintJob(printer, jobID, size, err)
	if err != nil {
		h.metrics.ObservePrintJob(metrics.ResultFailed, size)
		writeError(w, err)
		return
	}
	h.metrics.ObservePrintJob(metrics.ResultSubmitted, size)

	writeJSON(w, http.StatusOK, PrintResponse{
		Message: "Print job submitted successfully",
		JobID:   jobID,
	})
}

// LegacyJobStatus serves GET /v0/job/{job_id}. Status is the numeric
// job state rather than its label.
func (h *Handler) LegacyJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.findJob(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LegacyJobStatus{
		Status:  job.State,
		Printer: job.Printer,
		JobID:   job.ID,
	})
}
