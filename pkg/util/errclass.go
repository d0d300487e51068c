package util

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// statusCoder is implemented by provider API errors.
type statusCoder interface {
	HTTPStatus() int
}

// IsRetryableError decides whether a failed sync attempt is worth retrying on
// the next trigger, and names the error class for logs and metrics.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch {
		case sc.HTTPStatus() == 429:
			return true, "rate_limited"
		case sc.HTTPStatus() >= 500:
			return true, "provider_5xx"
		case sc.HTTPStatus() == 401 || sc.HTTPStatus() == 403:
			// needs re-auth, retrying with the same credential cannot help
			return false, "auth_error"
		default:
			return false, "provider_4xx"
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	// context.DeadlineExceeded also satisfies net.Error, so check it first
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	return false, "unknown_error"
}
