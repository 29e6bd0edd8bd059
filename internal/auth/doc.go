// Package auth implements the OAuth session manager: the PKCE
// authorization-code flow, token exchange and refresh, and retrieval of a
// valid access token for API calls.
//
// The session manager is a small state machine. It is Idle until
// StartAuthFlow opens the provider's authorization page and parks a
// single-slot pending attempt; the loopback callback completes or fails that
// attempt and returns the manager to Idle. Starting a new flow while one is
// pending rejects the old attempt before the new one begins.
//
// Token refresh is a bounded retry loop with exponential backoff. Transient
// failures (transport errors, 5xx) are retried; provider rejections
// (invalid_grant and friends) are terminal and surface as AuthExpiredError
// so the UI can prompt for re-authentication.
package auth
