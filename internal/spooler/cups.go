package spooler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muurk/printgate/internal/logging"
	"github.com/phin1x/go-ipp"
	"go.uber.org/zap"
)

// IPP attribute names requested from CUPS
const (
	attrPrinterName         = "printer-name"
	attrPrinterState        = "printer-state"
	attrPrinterStateMessage = "printer-state-message"
	attrPrinterLocation     = "printer-location"
	attrPrinterInfo         = "printer-info"
	attrDeviceURI           = "device-uri"
	attrPPDMakeAndModel     = "ppd-make-and-model"
	attrJobID               = "job-id"
	attrJobState            = "job-state"
	attrJobName             = "job-name"
	attrJobPrinterURI       = "job-printer-uri"
)

// PDFMimeType is the document format submitted with every job
const PDFMimeType = "application/pdf"

// Config holds the connection settings for a CUPS server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// cupsBackend is the part of the CUPS client the spooler drives.
type cupsBackend interface {
	GetPrinters(attributes []string) (map[string]ipp.Attributes, error)
	GetPPDs() (map[string]ipp.Attributes, error)
	CreatePrinter(reg Registration) error
	ResumePrinter(name string) error
	AcceptJobs(name string) error
	PrintJob(doc ipp.Document, printer string, attributes map[string]interface{}) (int, error)
	GetJobs(attributes []string) (map[int]ipp.Attributes, error)
}

// ippBackend adapts *ipp.CUPSClient to cupsBackend.
type ippBackend struct {
	client *ipp.CUPSClient
}

func (b ippBackend) GetPrinters(attributes []string) (map[string]ipp.Attributes, error) {
	return b.client.GetPrinters(attributes)
}

func (b ippBackend) GetPPDs() (map[string]ipp.Attributes, error) {
	return b.client.GetPPDs()
}

func (b ippBackend) CreatePrinter(reg Registration) error {
	return b.client.CreatePrinter(reg.Name, reg.DeviceURI, reg.PPD, reg.Shared, ipp.ErrorPolicyStopPrinter, reg.Info, reg.Location)
}

func (b ippBackend) ResumePrinter(name string) error {
	return b.client.ResumePrinter(name)
}

func (b ippBackend) AcceptJobs(name string) error {
	return b.client.AcceptJobs(name)
}

func (b ippBackend) PrintJob(doc ipp.Document, printer string, attributes map[string]interface{}) (int, error) {
	return b.client.PrintJob(doc, printer, attributes)
}

func (b ippBackend) GetJobs(attributes []string) (map[int]ipp.Attributes, error) {
	return b.client.GetJobs("", "", ipp.JobStateFilterAll, false, 0, 0, attributes)
}

// CUPS is a Spooler backed by a CUPS server over IPP.
type CUPS struct {
	backend cupsBackend
	host    string
}

// NewCUPS creates a spooler for the CUPS server described by cfg.
// Empty host and zero port default to localhost:631.
func NewCUPS(cfg Config) *CUPS {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultIPPPort
	}

	client := ipp.NewCUPSClient(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.UseTLS)
	return &CUPS{
		backend: ippBackend{client: client},
		host:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}

// Printers lists the configured queues sorted by name.
func (c *CUPS) Printers() ([]LocalPrinter, error) {
	attrs, err := c.backend.GetPrinters([]string{
		attrPrinterName,
		attrPrinterState,
		attrPrinterStateMessage,
		attrPrinterLocation,
		attrPrinterInfo,
		attrDeviceURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list printers on %s: %w", c.host, err)
	}

	printers := make([]LocalPrinter, 0, len(attrs))
	for name, a := range attrs {
		if n := attrString(a, attrPrinterName); n != "" {
			name = n
		}
		state := attrInt(a, attrPrinterState)
		printers = append(printers, LocalPrinter{
			Name:         name,
			State:        state,
			StateLabel:   PrinterStateLabel(state),
			StateMessage: attrString(a, attrPrinterStateMessage),
			Location:     attrString(a, attrPrinterLocation),
			Info:         attrString(a, attrPrinterInfo),
			DeviceURI:    attrString(a, attrDeviceURI),
		})
	}

	sort.Slice(printers, func(i, j int) bool { return printers[i].Name < printers[j].Name })
	return printers, nil
}

// PPDs lists installable drivers sorted by name.
func (c *CUPS) PPDs() ([]PPD, error) {
	attrs, err := c.backend.GetPPDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers on %s: %w", c.host, err)
	}

	ppds := make([]PPD, 0, len(attrs))
	for name, a := range attrs {
		ppds = append(ppds, PPD{Name: name, MakeAndModel: attrString(a, attrPPDMakeAndModel)})
	}
	sort.Slice(ppds, func(i, j int) bool { return ppds[i].Name < ppds[j].Name })
	return ppds, nil
}

// AddPrinter creates the queue, resumes it and makes it accept jobs.
func (c *CUPS) AddPrinter(reg Registration) error {
	if reg.PPD == "" {
		reg.PPD = PPDEverywhere
	}

	if err := c.backend.CreatePrinter(reg); err != nil {
		return fmt.Errorf("failed to create printer %q: %w", reg.Name, err)
	}
	if err := c.backend.ResumePrinter(reg.Name); err != nil {
		return fmt.Errorf("failed to enable printer %q: %w", reg.Name, err)
	}
	if err := c.backend.AcceptJobs(reg.Name); err != nil {
		return fmt.Errorf("failed to accept jobs on printer %q: %w", reg.Name, err)
	}

	logging.Info("Printer queue created",
		zap.String("printer", reg.Name),
		zap.String("device_uri", reg.DeviceURI),
		zap.String("ppd", reg.PPD),
	)
	return nil
}

// PrintFile submits the PDF at path to printer.
func (c *CUPS) PrintFile(printer, path, title string, options map[string]string) (int, error) {
	if printer == "" {
		return 0, ErrNoPrinter
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat document: %w", err)
	}

	if title == "" {
		title = filepath.Base(path)
	}

	doc := ipp.Document{
		Document: f,
		Size:     int(info.Size()),
		Name:     title,
		MimeType: PDFMimeType,
	}

	jobID, err := c.backend.PrintJob(doc, printer, ConvertOptions(options))
	if err != nil {
		return 0, fmt.Errorf("failed to print on %q: %w", printer, err)
	}

	logging.Debug("Document submitted",
		zap.String("printer", printer),
		zap.String("title", title),
		zap.Int("job_id", jobID),
	)
	return jobID, nil
}

// Jobs lists every job the server knows, ordered by id.
func (c *CUPS) Jobs() ([]Job, error) {
	attrs, err := c.backend.GetJobs([]string{attrJobID, attrJobState, attrJobName, attrJobPrinterURI})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs on %s: %w", c.host, err)
	}

	jobs := make([]Job, 0, len(attrs))
	for id, a := range attrs {
		jobs = append(jobs, Job{
			ID:      id,
			Printer: printerFromURI(attrString(a, attrJobPrinterURI)),
			State:   attrInt(a, attrJobState),
			Name:    attrString(a, attrJobName),
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// printerFromURI extracts the queue name from ipp://host/printers/<name>.
func printerFromURI(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

func attrString(attrs ipp.Attributes, name string) string {
	values := attrs[name]
	if len(values) == 0 {
		return ""
	}
	switch v := values[0].Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func attrInt(attrs ipp.Attributes, name string) int {
	values := attrs[name]
	if len(values) == 0 {
		return 0
	}
	switch v := values[0].Value.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
