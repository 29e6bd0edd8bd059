package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/taskpin/taskpin/internal/errdefs"
)

// ErrSuperseded is delivered to an attempt that was preempted by a newer
// StartAuthFlow call.
var ErrSuperseded = errdefs.NewInvalidRequest("authentication attempt superseded by a newer one")

// Attempt represents one in-flight authorization round-trip. The holder
// waits on Done for the callback to complete or fail it.
type Attempt struct {
	// ID correlates the attempt with its callback (OAuth state parameter).
	ID string

	// AuthURL is the provider authorization page opened for the user.
	AuthURL string

	verifier string
	done     chan error
}

// Done returns a channel that receives exactly one value: nil when the
// callback completed the attempt, or the failure that ended it.
func (a *Attempt) Done() <-chan error {
	return a.done
}

// pendingSlot is the single-slot box holding at most one in-flight attempt.
// A new attempt preempts the old one by failing it with ErrSuperseded before
// taking the slot.
type pendingSlot struct {
	mu      sync.Mutex
	current *Attempt
}

// put parks a new attempt, rejecting any attempt already in the slot.
func (s *pendingSlot) put(a *Attempt) {
	s.mu.Lock()
	old := s.current
	s.current = a
	s.mu.Unlock()

	if old != nil {
		old.done <- ErrSuperseded
	}
}

// take removes and returns the pending attempt, or nil when the slot is
// empty.
func (s *pendingSlot) take() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	s.current = nil
	return a
}

// peekID returns the ID of the pending attempt, or "" when the slot is
// empty.
func (s *pendingSlot) peekID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// newAttemptID returns a random correlation ID for an authorization attempt.
func newAttemptID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate attempt id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
