package notion

import (
	"fmt"
	"net/http"

	"github.com/starford/ehwaz/internal/apperr"
)

// APIError carries the remote error surface alongside the taxonomy sentinel
// it classifies into, so callers keep matching with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	class   error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion: status=%d message=%s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// classify maps an HTTP status to the shared error taxonomy.
func classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.ErrThrottled
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperr.ErrUnauthorized
	case status == http.StatusNotFound:
		return apperr.ErrNotFound
	case status >= 500:
		return apperr.ErrServer
	default:
		return nil
	}
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message, class: classify(status)}
}
