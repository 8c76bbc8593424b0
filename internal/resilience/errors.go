// Package resilience classifies export failures so the failure ledger tells
// an operator which attempts are worth re-running as-is.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Error categories recorded on failures.
const (
	CategoryTransient = "transient"
	CategoryPermanent = "permanent"
)

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// transienter is implemented by errors that know whether they are transient.
type transienter interface {
	Transient() bool
}

// IsTransient returns true if the error (or any error in its chain) reports
// itself as transient, carries a transient HTTP status, or matches common
// transient network failures (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var tr transienter
	if errors.As(err, &tr) {
		return tr.Transient()
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return IsTransientHTTPStatus(sc.HTTPStatus())
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return CategoryTransient
	}
	return CategoryPermanent
}
