// Package server assembles the printgate process.
//
// A Server owns the network printer registry and wires it to both sides:
// the discovery controller fills it from mDNS and the gateway handlers read
// it. New builds everything from a config.Config; collaborators can be
// swapped through Deps, which is how the tests run it without CUPS or
// multicast.
//
// # Lifecycle
//
// Run performs these steps in order:
//  1. Start discovery (a failure here aborts startup)
//  2. Listen on server.host:server.port, or the listener from Deps
//  3. Advertise the gateway as an _http._tcp service when enabled
//  4. Serve HTTP (or HTTPS when a certificate is configured) and sweep idle
//     rate-limit entries until the context is canceled
//
// On cancellation the HTTP server is shut down gracefully with a
// ShutdownTimeout bound, then the advertisement and discovery are stopped.
// Start wraps Run with SIGINT and SIGTERM handling for the CLI.
package server
