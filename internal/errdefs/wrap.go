package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OnlineFunc reports whether the machine currently has network connectivity.
// A nil OnlineFunc is treated as always online.
type OnlineFunc func(ctx context.Context) bool

// IsCancellation reports whether err is a caller-initiated cancellation or a
// deadline expiry. Cancellations are never reclassified into the taxonomy.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WrapFetchError classifies an error thrown while performing a network
// request, in this order: cancellations pass through unchanged, an offline
// machine yields NetworkOfflineError, transport-level failures yield
// NetworkError, already-classified errors pass through, and everything else
// becomes an APIError.
func WrapFetchError(ctx context.Context, err error, op string, online OnlineFunc) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	if online != nil && !online(ctx) {
		return NewNetworkOffline()
	}
	var classified Error
	if errors.As(err, &classified) {
		return err
	}
	if isTransportError(err) {
		return NewNetwork(fmt.Sprintf("%s: request failed", op), err)
	}
	return NewAPI(0, fmt.Sprintf("%s: unexpected failure", op), "", err)
}

// isTransportError reports whether err came from the transport layer rather
// than from an HTTP response.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// url.Error wraps dial/TLS failures with this text.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "failed to fetch") ||
		strings.Contains(msg, "EOF")
}

// WrapResponseError maps a non-2xx HTTP response to a taxonomy member.
// apiMessage, when non-empty, is a message already parsed from the response
// body's error envelope.
func WrapResponseError(resp *http.Response, op, apiMessage string) error {
	status := resp.StatusCode
	detail := apiMessage
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case status == http.StatusUnauthorized:
		return NewAuthExpired(fmt.Sprintf("%s: %s", op, detail), "", nil)
	case status == http.StatusForbidden:
		return NewAuthFailed(fmt.Sprintf("%s: access denied: %s", op, detail), nil)
	case status == http.StatusTooManyRequests:
		return NewRateLimit(ParseRetryAfter(resp.Header.Get("Retry-After")))
	case status == http.StatusNotFound:
		return NewAPI(status, fmt.Sprintf("%s: %s", op, detail),
			"The requested item could not be found.", nil)
	case status >= 500:
		return NewAPI(status, fmt.Sprintf("%s: server error: %s", op, detail),
			"Asana is having trouble right now. Please try again shortly.", nil)
	default:
		return NewAPI(status, fmt.Sprintf("%s: %s", op, detail), "", nil)
	}
}

// ParseRetryAfter parses a Retry-After header value (delta-seconds form) into
// a duration. Invalid or absent values return zero.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
