package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// classifyTransportError maps a resty/network error to a result.
func classifyTransportError(err error) Result {
	if errors.Is(err, context.Canceled) {
		return PermanentFailure("request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientFailure("request timed out")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientFailure(err.Error())
	}

	// Connection refused, DNS failures and friends are retryable.
	return TransientFailure(err.Error())
}

// classifyStatus maps a gateway HTTP status to a result. 429 and 5xx
// are retryable; 401/403 indicate bad credentials and disable the
// channel; everything else 4xx is permanent.
func classifyStatus(statusCode int, body string) Result {
	detail := fmt.Sprintf("gateway returned status %d", statusCode)
	if body != "" {
		detail = fmt.Sprintf("%s: %s", detail, body)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		r := PermanentFailure(detail)
		r.ConfigError = true
		return r
	case statusCode == http.StatusTooManyRequests:
		return TransientFailure(detail)
	case statusCode >= http.StatusInternalServerError && statusCode <= 599:
		return TransientFailure(detail)
	default:
		return PermanentFailure(detail)
	}
}
