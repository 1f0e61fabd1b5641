package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for idempotent requests
	DefaultMaxRetries = 2

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second

	headerAPIKey = "X-API-Key"
)

// Client talks to a printgate gateway.
type Client struct {
	// BaseURL is the gateway root (e.g., "http://printgate.local:3000")
	BaseURL string

	// APIKey is sent as X-API-Key when set
	APIKey string

	HTTPClient *http.Client

	// MaxRetries applies to GET requests only; uploads are never repeated
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// Dialer opens the /events WebSocket
	Dialer *websocket.Dialer
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
		Dialer:        websocket.DefaultDialer,
	}
}

// SetAPIKey sets the key sent with every request
func (c *Client) SetAPIKey(key string) {
	c.APIKey = key
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Health checks that the gateway is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Printers lists local queues followed by network printers.
func (c *Client) Printers(ctx context.Context) ([]Printer, error) {
	var printers []Printer
	if err := c.getJSON(ctx, "/printers", &printers); err != nil {
		return nil, err
	}
	return printers, nil
}

// JobStatus returns the state of a print job.
func (c *Client) JobStatus(ctx context.Context, jobID int) (*JobStatus, error) {
	var js JobStatus
	if err := c.getJSON(ctx, "/job_status/"+strconv.Itoa(jobID), &js); err != nil {
		return nil, err
	}
	return &js, nil
}

// AddPrinter registers a network printer on the gateway's print server.
func (c *Client) AddPrinter(ctx context.Context, req AddPrinterRequest) error {
	if req.Name == "" || req.Address == "" {
		return NewValidationError("printer name and address are required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return NewParseError("failed to encode request", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/add_printer", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, nil)
}

// Print uploads the PDF at req.Path and returns the job id.
func (c *Client) Print(ctx context.Context, req PrintRequest) (*PrintResult, error) {
	if req.Printer == "" {
		return nil, NewValidationError("printer name is required")
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("cannot open %s: %v", req.Path, err))
	}
	defer f.Close()

	body, contentType, err := buildPrintForm(f, filepath.Base(req.Path), req)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/print", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	var result PrintResult
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// buildPrintForm encodes the multipart body for POST /print.
func buildPrintForm(file io.Reader, filename string, req PrintRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("printer", req.Printer); err != nil {
		return nil, "", NewParseError("failed to encode form", err)
	}
	if req.Title != "" {
		if err := w.WriteField("title", req.Title); err != nil {
			return nil, "", NewParseError("failed to encode form", err)
		}
	}
	if len(req.Options) > 0 {
		opts, err := json.Marshal(req.Options)
		if err != nil {
			return nil, "", NewParseError("failed to encode options", err)
		}
		if err := w.WriteField("options", string(opts)); err != nil {
			return nil, "", NewParseError("failed to encode form", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", NewParseError("failed to encode form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", NewValidationError(fmt.Sprintf("cannot read %s: %v", filename, err))
	}
	if err := w.Close(); err != nil {
		return nil, "", NewParseError("failed to encode form", err)
	}

	return &buf, w.FormDataContentType(), nil
}

// WaitForJob polls JobStatus every interval until the job finishes or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, jobID int, interval time.Duration, progress func(*JobStatus)) (*JobStatus, error) {
	if interval <= 0 {
		return nil, NewValidationError(fmt.Sprintf("poll interval must be positive, got %s", interval))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		js, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(js)
		}
		if js.Finished() {
			return js, nil
		}

		select {
		case <-ctx.Done():
			return js, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchEvents streams printer list updates to fn until ctx is canceled, the
// gateway closes the stream or fn returns an error. Pings are not delivered.
func (c *Client) WatchEvents(ctx context.Context, fn func(Event) error) error {
	wsURL, err := c.eventsURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.APIKey != "" {
		header.Set(headerAPIKey, c.APIKey)
	}

	conn, resp, err := c.Dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return newStatusError(resp.StatusCode, readErrorMessage(resp.Body))
		}
		return ClassifyNetworkError("failed to open event stream", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return ClassifyNetworkError("event stream interrupted", err)
		}
		if ev.Type == EventPing {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.BaseURL + "/events")
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid gateway URL %q: %v", c.BaseURL, err))
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", NewValidationError(fmt.Sprintf("unsupported gateway URL scheme %q", u.Scheme))
	}
	return u.String(), nil
}

// getJSON performs a GET with retries on retryable failures.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		lastErr = c.do(req, v)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid request to %s: %v", c.BaseURL+path, err))
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set(headerAPIKey, c.APIKey)
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into v (if non-nil).
func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ClassifyNetworkError(req.Method+" "+req.URL.Path+" failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

// readErrorMessage extracts the gateway's {"error": "..."} message.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
