// Package config loads daemon configuration from TASKPIN_* environment
// variables, with defaults suitable for a local loopback deployment.
package config
