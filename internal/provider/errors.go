package provider

import "fmt"

// APIError is a non-2xx response from the provider, with status and body
// preserved for the caller.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *APIError) HTTPStatus() int { return e.Status }

// AuthError means the access credential is invalid or expired. Not retryable
// without re-auth.
type AuthError struct {
	APIError
}

// RateLimitedError is a 429 from the provider.
type RateLimitedError struct {
	APIError
	RetryAfter string
}
