package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL + "/")
	c.SetRetry(2, time.Millisecond)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://printgate.local:3000/")

	if c.BaseURL != "http://printgate.local:3000" {
		t.Errorf("BaseURL = %s, want trailing slash trimmed", c.BaseURL)
	}
	if c.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, DefaultTimeout)
	}

	c.SetTimeout(5 * time.Second)
	if c.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.HTTPClient.Timeout)
	}
}

func TestPrinters_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/printers" {
			t.Errorf("request = %s %s, want GET /printers", r.Method, r.URL.Path)
		}
		if got := r.Header.Get(headerAPIKey); got != "k1" {
			t.Errorf("X-API-Key = %q, want k1", got)
		}
		writeJSON(w, http.StatusOK, []Printer{
			{Name: "Office", Address: "ipp://office/ipp/print", Type: TypeLocal, State: "idle"},
			{Name: "Lab", Address: "192.0.2.30", Type: TypeNetwork, Port: 631},
		})
	})
	c.SetAPIKey("k1")

	printers, err := c.Printers(context.Background())
	if err != nil {
		t.Fatalf("Printers() error = %v", err)
	}
	if len(printers) != 2 {
		t.Fatalf("len(printers) = %d, want 2", len(printers))
	}
	if printers[0].IsNetwork() || !printers[1].IsNetwork() || printers[1].Port != 631 {
		t.Errorf("printers = %+v", printers)
	}
}

func TestGet_RetriesServerUnavailable(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, Health{Status: "ok", Version: "v1.0.0"})
	})

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("Status = %q", h.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestGet_NoRetryOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
	})

	_, err := c.JobStatus(context.Background(), 42)
	if !IsNotFoundError(err) {
		t.Fatalf("JobStatus() error = %v, want not found", err)
	}
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Message != "Job not found" {
		t.Errorf("error message = %v, want gateway message", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestJobStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job_status/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, JobStatus{Status: "completed", Printer: "Office", JobID: 7})
	})

	js, err := c.JobStatus(context.Background(), 7)
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if !js.Finished() || js.Printer != "Office" {
		t.Errorf("job = %+v", js)
	}
}

func TestWaitForJob(t *testing.T) {
	states := []string{"pending", "processing", "completed"}
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&calls, 1) - 1
		if int(i) >= len(states) {
			i = int32(len(states) - 1)
		}
		writeJSON(w, http.StatusOK, JobStatus{Status: states[i], Printer: "Office", JobID: 3})
	})

	var seen []string
	js, err := c.WaitForJob(context.Background(), 3, time.Millisecond, func(js *JobStatus) {
		seen = append(seen, js.Status)
	})
	if err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}
	if js.Status != "completed" || strings.Join(seen, ",") != "pending,processing,completed" {
		t.Errorf("final = %s, seen = %v", js.Status, seen)
	}
}

func TestWaitForJob_RejectsNonPositiveInterval(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, JobStatus{Status: "completed", JobID: 3})
	})

	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := c.WaitForJob(context.Background(), 3, interval, nil)
		if !IsValidationError(err) {
			t.Errorf("WaitForJob(interval=%s) error = %v, want validation error", interval, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("gateway was polled %d times", n)
	}
}

func TestAddPrinter(t *testing.T) {
	var got AddPrinterRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/add_printer" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Printer added successfully"})
	})

	err := c.AddPrinter(context.Background(), AddPrinterRequest{Name: "Lab", Address: "192.0.2.30:631", Location: "Room 4"})
	if err != nil {
		t.Fatalf("AddPrinter() error = %v", err)
	}
	if got.Name != "Lab" || got.Address != "192.0.2.30:631" || got.Location != "Room 4" {
		t.Errorf("request body = %+v", got)
	}
}

func TestAddPrinter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"validation", http.StatusBadRequest, IsValidationError},
		{"auth", http.StatusUnauthorized, IsAuthError},
		{"rate limited", http.StatusTooManyRequests, func(err error) bool { return isType(err, ErrTypeRateLimited) }},
		{"server", http.StatusInternalServerError, func(err error) bool { return isType(err, ErrTypeHTTP) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			})

			err := c.AddPrinter(context.Background(), AddPrinterRequest{Name: "Lab", Address: "192.0.2.30"})
			if !tt.check(err) {
				t.Errorf("AddPrinter() error = %v", err)
			}
			if got := atomic.LoadInt32(&calls); got != 1 {
				t.Errorf("calls = %d, want 1 (writes are not retried)", got)
			}
		})
	}

	c := NewClient("http://127.0.0.1:1")
	if err := c.AddPrinter(context.Background(), AddPrinterRequest{Name: "Lab"}); !IsValidationError(err) {
		t.Errorf("AddPrinter() without address error = %v, want validation", err)
	}
}

func TestPrint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, samplePDF, 0o600); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/print" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		if got := r.FormValue("printer"); got != "Office" {
			t.Errorf("printer = %q", got)
		}
		if got := r.FormValue("title"); got != "Quarterly" {
			t.Errorf("title = %q", got)
		}
		var opts map[string]string
		if err := json.Unmarshal([]byte(r.FormValue("options")), &opts); err != nil || opts["copies"] != "2" {
			t.Errorf("options = %q", r.FormValue("options"))
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "report.pdf" || header.Header.Get("Content-Type") != "application/pdf" || string(data) != string(samplePDF) {
			t.Errorf("file part = %s %s (%d bytes)", header.Filename, header.Header.Get("Content-Type"), len(data))
		}

		writeJSON(w, http.StatusOK, PrintResult{Message: "Print job submitted successfully", JobID: 12})
	})

	res, err := c.Print(context.Background(), PrintRequest{
		Printer: "Office",
		Path:    path,
		Title:   "Quarterly",
		Options: map[string]string{"copies": "2"},
	})
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if res.JobID != 12 {
		t.Errorf("JobID = %d, want 12", res.JobID)
	}
}

func TestPrint_LocalValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")

	if _, err := c.Print(context.Background(), PrintRequest{Path: "x.pdf"}); !IsValidationError(err) {
		t.Errorf("Print() without printer error = %v", err)
	}
	if _, err := c.Print(context.Background(), PrintRequest{Printer: "Office", Path: filepath.Join(t.TempDir(), "missing.pdf")}); !IsValidationError(err) {
		t.Errorf("Print() with missing file error = %v", err)
	}
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(url)
	c.SetRetry(0, 0)
	_, err := c.Printers(context.Background())
	if !IsNetworkError(err) {
		t.Fatalf("Printers() error = %v, want network error", err)
	}
}

func TestParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>not the gateway</html>"))
	})

	_, err := c.Printers(context.Background())
	if !isType(err, ErrTypeParse) {
		t.Errorf("Printers() error = %v, want parse error", err)
	}
}

func TestWatchEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(Event{Type: EventPrinters, Printers: []Printer{{Name: "A", Type: TypeNetwork}}})
		_ = conn.WriteJSON(Event{Type: EventPing})
		_ = conn.WriteJSON(Event{Type: EventPrinters, Printers: []Printer{{Name: "A"}, {Name: "B"}}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	var counts []int
	err := c.WatchEvents(context.Background(), func(ev Event) error {
		if ev.Type != EventPrinters {
			t.Errorf("delivered %q event", ev.Type)
		}
		counts = append(counts, len(ev.Printers))
		return nil
	})
	if err != nil {
		t.Fatalf("WatchEvents() error = %v", err)
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
		t.Errorf("printer counts = %v, want [1 2]", counts)
	}
}

func TestWatchEvents_CallbackErrorAndCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Event{Type: EventPrinters})
		// hold the stream open until the client goes away
		_, _, _ = conn.ReadMessage()
	})

	stopErr := errors.New("enough")
	if err := c.WatchEvents(context.Background(), func(Event) error { return stopErr }); !errors.Is(err, stopErr) {
		t.Errorf("WatchEvents() error = %v, want callback error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := c.WatchEvents(ctx, func(Event) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Errorf("WatchEvents() after cancel error = %v, want nil", err)
	}
}

func TestWatchEvents_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded"})
	})

	err := c.WatchEvents(context.Background(), func(Event) error { return nil })
	if !isType(err, ErrTypeRateLimited) {
		t.Errorf("WatchEvents() error = %v, want rate limited", err)
	}
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://gw:3000", "ws://gw:3000/events", false},
		{"https://gw", "wss://gw/events", false},
		{"ftp://gw", "", true},
	}
	for _, tt := range tests {
		got, err := NewClient(tt.base).eventsURL()
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("eventsURL(%s) = %q, %v", tt.base, got, err)
		}
	}
}
