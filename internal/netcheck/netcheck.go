// Package netcheck provides a cheap, live network-connectivity probe.
//
// The probe answers "does this machine have a route to the API right now",
// not "is the API healthy". It is consulted before network operations and
// before classifying their failures, so that an unplugged cable surfaces as
// NETWORK_OFFLINE rather than a generic network error.
package netcheck

import (
	"context"
	"net"
	"time"
)

// DefaultProbeAddr is the address dialed by the default checker. The API
// host's HTTPS port is used so the probe exercises the same path real
// requests take.
const DefaultProbeAddr = "app.asana.com:443"

// DefaultProbeTimeout bounds how long a single probe may take.
const DefaultProbeTimeout = 2 * time.Second

// Checker probes connectivity by opening and immediately closing a TCP
// connection.
type Checker struct {
	addr    string
	timeout time.Duration
	dialer  *net.Dialer
}

// NewChecker returns a Checker dialing addr. An empty addr uses
// DefaultProbeAddr.
func NewChecker(addr string) *Checker {
	if addr == "" {
		addr = DefaultProbeAddr
	}
	return &Checker{
		addr:    addr,
		timeout: DefaultProbeTimeout,
		dialer:  &net.Dialer{},
	}
}

// Online reports whether a TCP connection to the probe address can be
// established within the probe timeout.
func (c *Checker) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
