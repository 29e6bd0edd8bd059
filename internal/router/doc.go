// Package router dispatches typed messages from UI surfaces to the auth,
// API, cache and suggestion components, and normalizes every outcome into
// a single response envelope. Failures never cross the boundary raw: each
// one is classified into the error taxonomy first, and unknown message
// types come back as a structured INVALID_REQUEST instead of an error.
package router
