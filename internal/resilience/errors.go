package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// BlockError reports that the remote site refused the request as automated
// traffic even after a session rotation.
type BlockError struct {
	URL        string
	StatusCode int
	Kind       string
}

func (e *BlockError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("blocked (%s, status %d): %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("blocked (status %d): %s", e.StatusCode, e.URL)
}

// RateLimitError reports a 429 that persisted through the fetcher's own
// cooldown. It is retried without consuming the retry budget.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.URL)
}

// IsBlocked reports whether err is (or wraps) a BlockError.
func IsBlocked(err error) bool {
	var be *BlockError
	return errors.As(err, &be)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures). Blocks are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsBlocked(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

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
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
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
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// Error classes reported by ClassifyError.
const (
	ClassTransient   = "transient"
	ClassBlocked     = "blocked"
	ClassRateLimited = "rate_limited"
	ClassPermanent   = "permanent"
)

// ClassifyError categorizes an error for logging and per-outcome counts.
func ClassifyError(err error) string {
	switch {
	case IsRateLimited(err):
		return ClassRateLimited
	case IsBlocked(err):
		return ClassBlocked
	case IsTransient(err):
		return ClassTransient
	default:
		return ClassPermanent
	}
}
