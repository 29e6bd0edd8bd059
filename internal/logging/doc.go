// Package logging centralizes structured logging for the daemon on top of
// the standard library's slog package.
//
// It provides attribute constructors for consistent key naming, token
// sanitization so credentials never appear in log output, and handler setup
// driven by environment variables.
package logging
