// Package gateway implements the printgate HTTP API.
//
// # Routes
//
//	GET  /health                  liveness
//	GET  /metrics                 Prometheus exposition
//	GET  /printers                local queues then network printers
//	POST /add_printer             register a network printer with CUPS
//	POST /print                   multipart PDF upload
//	GET  /job_status/{job_id}     job state
//	GET  /events                  WebSocket stream of network printers
//
// The first API revision is mounted under /v0 when enabled
// (RouterConfig.LegacyAPI). Its responses carry a Deprecation header.
//
// # Errors
//
// Every failure is written as {"error": "..."}. The status code comes from
// the ErrorType of the *Error returned by the handler; errors that are not
// an *Error become 500 with a generic message.
//
// # Middleware
//
// Requests are assigned an X-Request-ID, logged through the logging
// package and counted in metrics by route template. State-changing routes
// require X-API-Key when keys are configured, and their bodies are capped
// at RouterConfig.MaxUploadBytes. A RateLimiter applies per-IP budgets to
// all API routes.
package gateway
