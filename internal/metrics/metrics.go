// Package metrics exposes gateway activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Print job results
const (
	ResultSubmitted = "submitted"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Metrics holds every collector of the gateway, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	DiscoveryEvents     *prometheus.CounterVec
	NetworkPrinterCount prometheus.Gauge
	PrintJobs           *prometheus.CounterVec
	PrintBytes          prometheus.Counter
	PrintersAdded       *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	RateLimited         prometheus.Counter
	EventClients        prometheus.Gauge
}

// New creates a Metrics instance with all gateway metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DiscoveryEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "printgate_discovery_events_total",
			Help: "Discovery events applied to the printer registry, by kind",
		}, []string{"kind"}),
		NetworkPrinterCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "printgate_network_printers",
			Help: "Network printers currently in the registry",
		}),
		PrintJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "printgate_print_jobs_total",
			Help: "Print requests by result",
		}, []string{"result"}),
		PrintBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "printgate_print_bytes_total",
			Help: "Bytes of PDF submitted to the spooler",
		}),
		PrintersAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "printgate_printers_added_total",
			Help: "Printer registrations by result",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "printgate_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "printgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "printgate_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		}),
		EventClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "printgate_event_clients",
			Help: "Connected WebSocket event clients",
		}),
	}
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// DiscoveryEvent records an applied discovery event.
func (m *Metrics) DiscoveryEvent(kind string) {
	m.DiscoveryEvents.WithLabelValues(kind).Inc()
}

// NetworkPrinters sets the current registry size.
func (m *Metrics) NetworkPrinters(count int) {
	m.NetworkPrinterCount.Set(float64(count))
}

// ObservePrintJob records the outcome of a print request.
func (m *Metrics) ObservePrintJob(result string, size int64) {
	m.PrintJobs.WithLabelValues(result).Inc()
	if result == ResultSubmitted && size > 0 {
		m.PrintBytes.Add(float64(size))
	}
}

// ObservePrinterAdded records the outcome of a printer registration.
func (m *Metrics) ObservePrinterAdded(ok bool) {
	result := ResultSubmitted
	if !ok {
		result = ResultFailed
	}
	m.PrintersAdded.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records a finished request.
// Call with time.Now() taken when the request started.
func (m *Metrics) ObserveHTTPRequest(route, method string, code int, start time.Time) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// IncrementRateLimited records a request rejected by the rate limiter.
func (m *Metrics) IncrementRateLimited() {
	m.RateLimited.Inc()
}

// EventClientConnected tracks WebSocket subscribers
func (m *Metrics) EventClientConnected() { m.EventClients.Inc() }

// EventClientDisconnected tracks WebSocket subscribers
func (m *Metrics) EventClientDisconnected() { m.EventClients.Dec() }
