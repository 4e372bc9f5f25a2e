package jobsource

import (
	"errors"
	"fmt"
	"net/http"
)

// SourceError represents a failed call to the upstream record store
type SourceError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *SourceError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("source error %d: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("source error %d: %s", e.Code, e.Message)
}

// Retryable reports whether a repeat of the request may succeed
func (e *SourceError) Retryable() bool {
	return e.Code == 0 || e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Predefined error types
var (
	ErrUnauthorized = &SourceError{
		Code:    http.StatusUnauthorized,
		Message: "Unauthorized access to record store",
	}
	ErrInvalidResponse = &SourceError{
		Code:    0,
		Message: "Invalid response from record store",
	}
	ErrCircuitOpen = errors.New("record store circuit breaker is open")
)

// NewSourceError creates a new SourceError with custom details
func NewSourceError(code int, message string, details map[string]interface{}) *SourceError {
	return &SourceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func isRetryable(err error) bool {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Retryable()
	}
	return false
}
