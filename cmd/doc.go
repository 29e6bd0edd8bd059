// Package cmd implements the command-line interface for taskpin.
//
// This package provides the following commands:
//   - serve: Run the daemon that answers messages from the capturing surface
//   - login: Authorize taskpin with the task provider
//   - logout: Discard stored credentials and cached data
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
