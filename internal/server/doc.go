// Package server wires the daemon's components together and exposes them
// over HTTP.
//
// ServerContext builds storage, the OAuth session manager, the API client,
// the response cache, the suggester and the message router from a single
// configuration, and owns their shared shutdown.
//
// Server is the HTTP surface: POST /api/message dispatches one typed
// message through the router, GET /oauth/callback completes a pending
// authorization attempt, and the health endpoints report liveness and
// readiness. MetricsServer serves Prometheus metrics on a separate
// listener so the scrape endpoint stays off the message port.
package server
