// Package asana is the resilient client for the Asana REST API.
//
// Every request goes through AuthenticatedRequest, which obtains a valid
// access token from the session manager (refreshing it if needed), attaches
// the bearer header, retries rate-limited responses with bounded backoff,
// and classifies every failure into the shared error taxonomy before
// returning. The typed accessors are thin projections over it that select
// fields and map the wire shapes to internal records.
package asana
