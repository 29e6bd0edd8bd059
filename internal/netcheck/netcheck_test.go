package netcheck

import (
	"context"
	"net"
	"testing"
)

func TestOnline_ReachableAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewChecker(ln.Addr().String())
	if !c.Online(context.Background()) {
		t.Error("expected Online() = true for a listening address")
	}
}

func TestOnline_UnreachableAddress(t *testing.T) {
	// Grab a free port and close it again so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewChecker(addr)
	if c.Online(context.Background()) {
		t.Error("expected Online() = false for a closed port")
	}
}

func TestNewChecker_DefaultAddr(t *testing.T) {
	c := NewChecker("")
	if c.addr != DefaultProbeAddr {
		t.Errorf("addr = %q, want %q", c.addr, DefaultProbeAddr)
	}
}
