package classifier

import (
	"fmt"
	"net/http"
)

// Failure kinds, used as the "kind" field of diagnostics.
const (
	KindTransport   = "transport"
	KindApplication = "application"
)

// TransportError means no usable response was received.
type TransportError struct {
	// Cause is the underlying network or decoding error.
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("classifier transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ApplicationError means the classifier answered but reported a failure.
type ApplicationError struct {
	// Status is the HTTP status code of the response.
	Status int
	// Message is the classifier's error text, or "HTTP <status> error".
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("classifier application error (status %d): %s", e.Status, e.Message)
}

func newApplicationError(status int, message string) *ApplicationError {
	if message == "" {
		message = fmt.Sprintf("HTTP %d error", status)
	}

	return &ApplicationError{
		Status:  status,
		Message: message,
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
