package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// RetryClassifier decides whether a transport-level error is worth
// retrying. It only ever sees errors raised before response headers
// arrived; once headers are in, the engine never retries.
//
// Example classifier that retries everything except cancellation:
//
//	fetch.WithRetryPolicy(fetch.RetryPolicyWithClassifier(3, func(err error) bool {
//	    return !errors.Is(err, context.Canceled)
//	}))
type RetryClassifier func(err error) bool

// DefaultClassifier applies production-safe retry rules.
//
// Retries on:
//   - timeouts (including per-attempt deadlines)
//   - connection refused/reset/aborted, unreachable network or host
//   - temporary DNS failures
//
// Does NOT retry on:
//   - context cancellation (intentional cancellation by the caller)
//   - TLS certificate errors
//   - DNS NXDOMAIN (the host does not exist)
//   - permission errors
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if isPermanentError(err) {
		return false
	}

	if isRetryableNetworkError(err) {
		return true
	}

	// Unknown transport error: default to retry. Anything reaching the
	// classifier happened before response headers, so a retry is safe.
	return true
}

// isRetryableNetworkError returns true for network errors that are
// typically transient and may succeed on retry.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// Only retry if the DNS error is explicitly temporary or a timeout.
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return containsTransientPattern(err)
}

// containsTransientPattern is a fallback for edge cases where type checks
// fail (wrapped errors from third-party transports).
func containsTransientPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"network is down",
		"network unreachable",
		"i/o timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// isPermanentError returns true for errors that will not succeed on retry
// and should fail immediately.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	// DNS not found: the host does not exist (NXDOMAIN).
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPermanentPattern(err)
}

// containsPermanentPattern is a fallback for edge cases where type checks fail.
func containsPermanentPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"x509:",
		"certificate",
		"tls:",
		"no such host",
		"no route to host",
		"permission denied",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}
