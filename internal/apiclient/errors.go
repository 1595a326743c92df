package apiclient

import "fmt"

// APIError is returned when the remote API answers with a non-2xx status.
// 4xx responses surface as APIError without retries; 5xx responses surface
// as APIError only after retries are exhausted.
type APIError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("API error %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("API error %d %s", e.Status, e.StatusText)
}

// Retryable reports whether the failure is a server-side condition worth
// retrying. Client errors (4xx) are never retried.
func (e *APIError) Retryable() bool {
	return e.Status >= 500
}

// NetworkError is returned for connectivity failures: DNS errors, refused
// connections, request timeouts. These are always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
