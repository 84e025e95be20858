package waittimes

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors surfaced by the publisher and fetchers. Callers classify
// with errors.Is.
var (
	// ErrAuth means the posting API rejected the credentials. The cycle is
	// over; retrying with the same credentials cannot succeed.
	ErrAuth = errors.New("posting api rejected credentials")

	// ErrRateLimited means the posting API throttled us. The next scheduled
	// cycle retries naturally.
	ErrRateLimited = errors.New("posting api rate limit exceeded")

	// ErrPostRejected means the posting API refused the message itself,
	// e.g. duplicate or oversized content.
	ErrPostRejected = errors.New("posting api rejected message")

	// ErrUnexpectedContentType means the page response was not HTML.
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// HTTPStatusError reports a non-success HTTP status from the wait-times page.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s fetching %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Transient reports whether the status is worth another attempt.
func (e *HTTPStatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
