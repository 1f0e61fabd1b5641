package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Auth guards the routes that change state; nil or empty disables it
	Auth *KeyAuthenticator

	// Limiter applies per-caller request budgets; nil disables rate limiting
	Limiter *RateLimiter

	// CORSOrigins lists the origins allowed to call the API ("*" for any)
	CORSOrigins []string

	// LegacyAPI mounts the first API revision under /v0
	LegacyAPI bool

	// MaxUploadBytes caps request bodies on upload routes
	MaxUploadBytes int64
}

// NewRouter wires the handlers, middleware and CORS into one http.Handler.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	limit := cfg.MaxUploadBytes
	if limit <= 0 {
		limit = h.opts.MaxUploadBytes
	}

	root := mux.NewRouter()
	root.Use(routeLabel)
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewNotFoundError("Not found"))
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	root.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	root.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	if cfg.LegacyAPI {
		legacy := root.PathPrefix(LegacyPrefix).Subrouter()
		legacy.Use(deprecated, rateLimit(cfg.Limiter, h.metrics))
		legacy.HandleFunc("/printers", h.LegacyListPrinters).Methods(http.MethodGet)
		legacy.HandleFunc("/job/{job_id}", h.LegacyJobStatus).Methods(http.MethodGet)

		legacyWrites := legacy.NewRoute().Subrouter()
		legacyWrites.Use(cfg.Auth.Middleware, limitBody(limit))
		legacyWrites.HandleFunc("/printers/add", h.LegacyAddPrinter).Methods(http.MethodPost)
		legacyWrites.HandleFunc("/print", h.LegacyPrint).Methods(http.MethodPost)
	}

	api := root.NewRoute().Subrouter()
	api.Use(rateLimit(cfg.Limiter, h.metrics))
	api.HandleFunc("/printers", h.ListPrinters).Methods(http.MethodGet)
	api.HandleFunc("/job_status/{job_id}", h.JobStatus).Methods(http.MethodGet)
	api.HandleFunc("/events", h.Events).Methods(http.MethodGet)

	writes := api.NewRoute().Subrouter()
	writes.Use(cfg.Auth.Middleware, limitBody(limit))
	writes.HandleFunc("/add_printer", h.AddPrinter).Methods(http.MethodPost)
	writes.HandleFunc("/print", h.Print).Methods(http.MethodPost)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			HeaderAPIKey,
			HeaderRequestID,
			"Printer-Name",
			"Print-Options",
		},
		ExposedHeaders: []string{
			HeaderRequestID,
			"Deprecation",
			"Retry-After",
		},
		MaxAge: 300,
	})

	return observe(h.metrics)(recoverPanics(c.Handler(root)))
}
