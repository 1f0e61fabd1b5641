package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/muurk/printgate/internal/discovery"
	"github.com/muurk/printgate/internal/metrics"
	"github.com/muurk/printgate/internal/spooler"
)

// fakeSpooler records calls and serves canned data.
type fakeSpooler struct {
	mu sync.Mutex

	printers []spooler.LocalPrinter
	ppds     []spooler.PPD
	jobs     []spooler.Job

	err      error // returned by every call when set
	printErr error
	panics   bool // Printers panics

	added   []spooler.Registration
	printed []printCall
	nextJob int
}

type printCall struct {
	printer string
	path    string
	title   string
	options map[string]string
	data    []byte
}

func (f *fakeSpooler) Printers() ([]spooler.LocalPrinter, error) {
	if f.panics {
		panic("spooler exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]spooler.LocalPrinter(nil), f.printers...), nil
}

func (f *fakeSpooler) PPDs() ([]spooler.PPD, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]spooler.PPD(nil), f.ppds...), nil
}

func (f *fakeSpooler) AddPrinter(reg spooler.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, reg)
	return nil
}

func (f *fakeSpooler) PrintFile(printer, path, title string, options map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// The document must still exist while the spooler reads it.
	data, readErr := os.ReadFile(path)
	f.printed = append(f.printed, printCall{printer: printer, path: path, title: title, options: options, data: data})
	if readErr != nil {
		return 0, readErr
	}
	if f.err != nil {
		return 0, f.err
	}
	if f.printErr != nil {
		return 0, f.printErr
	}

	f.nextJob++
	f.jobs = append(f.jobs, spooler.Job{ID: f.nextJob, Printer: printer, State: spooler.JobPending, Name: title})
	return f.nextJob, nil
}

func (f *fakeSpooler) Jobs() ([]spooler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]spooler.Job(nil), f.jobs...), nil
}

func (f *fakeSpooler) lastPrint(t *testing.T) printCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.printed) == 0 {
		t.Fatal("PrintFile was not called")
	}
	return f.printed[len(f.printed)-1]
}

// mapResolver resolves instance names from a fixed table.
type mapResolver map[string]*discovery.ServiceInfo

func (m mapResolver) Resolve(ctx context.Context, serviceType, name string) (*discovery.ServiceInfo, error) {
	if info, ok := m[name]; ok {
		return info, nil
	}
	return nil, errors.New("no such instance")
}

// testGateway bundles a running test server with its collaborators.
type testGateway struct {
	server   *httptest.Server
	handler  *Handler
	spooler  *fakeSpooler
	registry *discovery.Registry
	metrics  *metrics.Metrics
	tempDir  string
}

func (g *testGateway) url(path string) string {
	return g.server.URL + path
}

func newTestGateway(t *testing.T, cfg RouterConfig) *testGateway {
	t.Helper()

	g := &testGateway{
		spooler:  &fakeSpooler{},
		registry: discovery.NewRegistry(),
		metrics:  metrics.New(),
		tempDir:  t.TempDir(),
	}
	g.handler = NewHandler(g.spooler, g.registry, g.metrics, Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		TempDir:        g.tempDir,
	})
	g.server = httptest.NewServer(NewRouter(g.handler, cfg))
	t.Cleanup(g.server.Close)
	return g
}

// assertTempDirEmpty fails when uploads were left behind.
func (g *testGateway) assertTempDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(g.tempDir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", g.tempDir, err)
	}
	for _, e := range entries {
		t.Errorf("temporary file left behind: %s", filepath.Join(g.tempDir, e.Name()))
	}
}

// printForm builds a multipart /print body.
func printForm(t *testing.T, fields map[string]string, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func newRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")
