package gateway

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/muurk/printgate/internal/logging"
	"github.com/muurk/printgate/internal/metrics"
	"go.uber.org/zap"
)

// Header names used by the API
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"
)

// routeUnmatched labels requests no route matched
const routeUnmatched = "unmatched"

type contextKey int

const requestInfoKey contextKey = iota

// requestInfo is shared between the outer observer and the route-level
// middleware that learns the matched route template.
type requestInfo struct {
	id    string
	route string
}

// RequestID returns the id assigned to the request, if any
func RequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.id
	}
	return ""
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if !r.wrote {
		r.status = http.StatusSwitchingProtocols
		r.wrote = true
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// observe assigns a request id, then logs and measures every request.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(HeaderRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			info := &requestInfo{id: id, route: routeUnmatched}
			w.Header().Set(HeaderRequestID, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

			logging.LogHTTPRequest(id, r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
			if m != nil {
				m.ObserveHTTPRequest(info.route, r.Method, rec.status, start)
			}
		})
	}
}

// routeLabel records the matched route template for metrics. It must be
// installed on the router so that mux has matched the route.
func routeLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					info.route = tmpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics converts handler panics into 500 responses.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logging.Error("Handler panic",
					zap.String("request_id", RequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.ByteString("stack", debug.Stack()))
				writeError(w, NewUnexpectedError(fmt.Errorf("panic: %v", v)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// KeyAuthenticator checks API keys by comparing HMAC-SHA256 digests, so the
// comparison time does not depend on where the keys differ.
type KeyAuthenticator struct {
	secret  []byte
	digests [][]byte
}

// NewKeyAuthenticator prepares the digests of keys. A random secret is
// generated when secret is empty.
func NewKeyAuthenticator(keys []string, secret string) (*KeyAuthenticator, error) {
	a := &KeyAuthenticator{secret: []byte(secret)}
	if len(a.secret) == 0 {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, fmt.Errorf("failed to generate secret key: %w", err)
		}
	}

	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		a.digests = append(a.digests, a.digest(key))
	}
	return a, nil
}

func (a *KeyAuthenticator) digest(key string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Enabled reports whether any key is configured
func (a *KeyAuthenticator) Enabled() bool {
	return a != nil && len(a.digests) > 0
}

// Valid reports whether key matches a configured key. Every configured
// digest is compared.
func (a *KeyAuthenticator) Valid(key string) bool {
	if key == "" {
		return false
	}
	got := a.digest(key)
	ok := false
	for _, want := range a.digests {
		if hmac.Equal(got, want) {
			ok = true
		}
	}
	return ok
}

// Middleware requires a valid X-API-Key when keys are configured.
func (a *KeyAuthenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(r.Header.Get(HeaderAPIKey)) {
			logging.Warn("Rejected request with invalid API key",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path))
			writeError(w, NewAuthError("Invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects callers that exhausted their budget.
func rateLimit(l *RateLimiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !l.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(callerIP(r)) {
				if m != nil {
					m.IncrementRateLimited()
				}
				w.Header().Set("Retry-After", "60")
				writeError(w, NewRateLimitError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitBody caps request bodies at limit bytes.
func limitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, NewTooLargeError(limit))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
