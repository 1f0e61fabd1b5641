package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/muurk/printgate/internal/discovery"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/metrics"
	"github.com/muurk/printgate/internal/spooler"
	"github.com/muurk/printgate/internal/version"
	"go.uber.org/zap"
)

// Printer origins reported by GET /printers
const (
	TypeLocal   = "local"
	TypeNetwork = "network"
)

// multipartMemory is how much of a multipart body is held in memory
// before the standard library spills it to disk.
const multipartMemory = 8 << 20

// DefaultMaxUploadBytes caps request bodies when no limit is configured
const DefaultMaxUploadBytes = 32 << 20

// Options configures a Handler.
type Options struct {
	// MaxUploadBytes caps request bodies
	MaxUploadBytes int64

	// TempDir receives uploaded documents while they are spooled (os.TempDir if empty)
	TempDir string

	// AllowedOrigins restricts WebSocket upgrades; empty or "*" allows any origin
	AllowedOrigins []string

	// PingInterval is the keepalive period for event streams
	PingInterval time.Duration
}

// Handler serves the printgate HTTP API.
type Handler struct {
	spooler  spooler.Spooler
	registry *discovery.Registry
	metrics  *metrics.Metrics
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates the API handlers. A nil metrics gets a private instance.
func NewHandler(sp spooler.Spooler, registry *discovery.Registry, m *metrics.Metrics, opts Options) *Handler {
	if m == nil {
		m = metrics.New()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	h := &Handler{
		spooler:  sp,
		registry: registry,
		metrics:  m,
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Metrics returns the metrics the handler records into
func (h *Handler) Metrics() *metrics.Metrics {
	return h.metrics
}

// PrinterView is one entry of GET /printers.
type PrinterView struct {
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Type       string            `json:"type"`
	Port       int               `json:"port,omitempty"`
	State      string            `json:"state,omitempty"`
	Location   string            `json:"location,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// AddPrinterRequest is the body of POST /add_printer.
type AddPrinterRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Location     string `json:"location,omitempty"`
	Info         string `json:"info,omitempty"`
}

// PrintResponse is returned by POST /print.
type PrintResponse struct {
	Message string `json:"message"`
	JobID   int    `json:"job_id"`
}

// JobStatusResponse is returned by GET /job_status/{job_id}.
type JobStatusResponse struct {
	Status  string `json:"status"`
	Printer string `json:"printer"`
	JobID   int    `json:"job_id"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	build := version.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"version":          build.Version,
		"commit":           build.Commit,
		"go_version":       build.GoVersion,
		"network_printers": h.registry.Len(),
	})
}

// ListPrinters returns local queues followed by discovered network printers.
func (h *Handler) ListPrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := h.printerViews()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, printers)
}

func (h *Handler) printerViews() ([]PrinterView, error) {
	local, err := h.spooler.Printers()
	if err != nil {
		return nil, NewSubsystemError(err)
	}

	views := make([]PrinterView, 0, len(local)+h.registry.Len())
	for _, p := range local {
		views = append(views, PrinterView{
			Name:     p.Name,
			Address:  p.DeviceURI,
			Type:     TypeLocal,
			State:    p.StateLabel,
			Location: p.Location,
		})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	return append(views, networkViews(h.registry.Snapshot())...), nil
}

// networkViews converts registry records, sorted by name then key.
func networkViews(records []discovery.PrinterRecord) []PrinterView {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].Key < records[j].Key
	})

	views := make([]PrinterView, 0, len(records))
	for _, rec := range records {
		views = append(views, PrinterView{
			Name:       rec.Name,
			Address:    rec.Address,
			Type:       TypeNetwork,
			Port:       rec.Port,
			Properties: rec.Properties,
		})
	}
	return views
}

// AddPrinter registers a network printer as a local queue.
func (h *Handler) AddPrinter(w http.ResponseWriter, r *http.Request) {
	var req AddPrinterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if err := ValidatePrinterName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	if err := ValidateAddress(req.Address); err != nil {
		writeError(w, err)
		return
	}

	host, port := spooler.SplitAddress(req.Address)
	reg := spooler.Registration{
		Name:      req.Name,
		DeviceURI: spooler.DeviceURI(host, port),
		Location:  req.Location,
		Info:      req.Info,
	}

	hint := req.Manufacturer
	if record, ok := h.registry.FindByAddress(host); ok {
		if hint == "" {
			hint = record.Manufacturer()
		}
		if reg.Location == "" {
			reg.Location = record.GetProperty("location")
		}
		if reg.Info == "" {
			reg.Info = record.GetProperty("note")
		}
	}

	if err := h.register(reg, hint); err != nil {
		h.metrics.ObservePrinterAdded(false)
		writeError(w, err)
		return
	}
	h.metrics.ObservePrinterAdded(true)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Printer added successfully"})
}

// register picks a driver for hint and creates the queue.
func (h *Handler) register(reg spooler.Registration, hint string) error {
	reg.PPD = spooler.PPDEverywhere
	if strings.TrimSpace(hint) != "" {
		ppds, err := h.spooler.PPDs()
		if err != nil {
			return NewSubsystemError(err)
		}
		reg.PPD = spooler.MatchPPD(ppds, hint)
	}

	if err := h.spooler.AddPrinter(reg); err != nil {
		return NewSubsystemError(err)
	}
	return nil
}

// Print accepts a multipart PDF upload and submits it to a printer.
func (h *Handler) Print(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, h.bodyError(err, "Expected a multipart/form-data upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	printer := strings.TrimSpace(r.FormValue("printer"))
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

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, NewValidationError("File is required"))
		return
	}
	defer file.Close()

	if !IsPDF(header.Header.Get("Content-Type"), header.Filename) {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, NewValidationError("Only PDF files are supported"))
		return
	}

	options, err := parseOptions(r.FormValue("options"))
	if err != nil {
		h.metrics.ObservePrintJob(metrics.ResultRejected, 0)
		writeError(w, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = filepath.Base(header.Filename)
	}

	jobID, size, err := h.spool(file, printer, title, options)
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

// spool copies document into a temporary file, submits it and removes the
// file before returning, whatever the outcome.
func (h *Handler) spool(document io.Reader, printer, title string, options map[string]string) (int, int64, error) {
	tmp, err := os.CreateTemp(h.opts.TempDir, "printgate-*.pdf")
	if err != nil {
		return 0, 0, NewUnexpectedError(fmt.Errorf("failed to create temporary file: %w", err))
	}
	path := tmp.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logging.Warn("Failed to remove temporary document", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	size, err := io.Copy(tmp, document)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, size, h.bodyError(fmt.Errorf("failed to store document: %w", err), "Failed to read document")
	}
	if size == 0 {
		return 0, 0, NewValidationError("Uploaded file is empty")
	}

	jobID, err := h.spooler.PrintFile(printer, path, title, options)
	if err != nil {
		return 0, size, NewSubsystemError(err)
	}
	return jobID, size, nil
}

// parseOptions decodes the optional JSON object of job options. Scalar
// values are accepted and converted to strings.
func parseOptions(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, NewValidationError("options must be a JSON object")
	}

	options := make(map[string]string, len(decoded))
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			options[key] = v
		case float64:
			options[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			options[key] = strconv.FormatBool(v)
		default:
			return nil, NewValidationError(fmt.Sprintf("option %q must be a string, number or boolean", key))
		}
	}
	return options, nil
}

// JobStatus reports the state of a print job.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.findJob(mux.Vars(r)["job_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobStatusResponse{
		Status:  job.Status(),
		Printer: job.Printer,
		JobID:   job.ID,
	})
}

// findJob looks up a job by its textual id among all jobs, completed included.
func (h *Handler) findJob(rawID string) (spooler.Job, error) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return spooler.Job{}, NewValidationError(fmt.Sprintf("invalid job id: %q", rawID))
	}

	jobs, err := h.spooler.Jobs()
	if err != nil {
		return spooler.Job{}, NewSubsystemError(err)
	}

	job, ok := spooler.FindJob(jobs, id)
	if !ok {
		return spooler.Job{}, NewNotFoundError("Job not found")
	}
	return job, nil
}

// bodyError classifies a failure to read the request body.
func (h *Handler) bodyError(err error, message string) *Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewTooLargeError(tooLarge.Limit)
	}
	return &Error{Type: ErrTypeValidation, Message: message, Err: err}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return NewValidationError("Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewTooLargeError(tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return NewValidationError("Request body is required")
		}
		return &Error{Type: ErrTypeValidation, Message: "Invalid JSON body", Err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes err as {"error": message} with its status code.
func writeError(w http.ResponseWriter, err error) {
	gwErr := AsError(err)
	if gwErr.Type == ErrTypeUnexpected || gwErr.Type == ErrTypeSubsystem {
		logging.Error("Request failed", zap.Stringer("type", gwErr.Type), zap.Error(gwErr))
	}
	writeJSON(w, gwErr.StatusCode(), map[string]string{"error": gwErr.PublicMessage()})
}
