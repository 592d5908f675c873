// Package httpx classifies transport and HTTP-status errors as
// retryable or not, for use by components that wrap a retry loop
// around an external call (the LLM Client).
package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// HTTPStatusCoder is implemented by errors that carry the HTTP status
// code of the response that produced them.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// IsRetryableHTTPStatus reports whether code is one the caller should
// retry: request timeout, rate-limited, or any 5xx.
func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports whether err represents a transient failure
// (context deadline, network timeout, or a retryable HTTP status)
// rather than a permanent one (auth/validation).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}
