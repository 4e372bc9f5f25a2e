package utils

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
)

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
	Meta      interface{} `json:"meta,omitempty"`
}

// ErrorResponse represents an error response with request context
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	Code      int         `json:"code"`
	Timestamp string      `json:"timestamp"`
	Request   RequestInfo `json:"request"`
	Details   interface{} `json:"details,omitempty"`
}

// RequestInfo provides context about the failed request
type RequestInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendSuccessWithMeta sends a successful response with metadata
func SendSuccessWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendError sends an error response with request context
func SendError(c *gin.Context, statusCode int, message string) {
	sendError(c, statusCode, message, nil)
}

// SendAppError sends err using the status code and message of the AppError it wraps
func SendAppError(c *gin.Context, err error) {
	status := apperrors.GetStatusCode(err)
	message := http.StatusText(status)
	var details interface{}

	if appErr, ok := err.(*apperrors.AppError); ok {
		message = appErr.Message
		if appErr.Details != "" {
			details = map[string]interface{}{"message": appErr.Details}
		}
	} else if err != nil && status < http.StatusInternalServerError {
		message = err.Error()
	}

	sendError(c, status, message, details)
}

func sendError(c *gin.Context, statusCode int, message string, details interface{}) {
	errorResponse := ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      statusCode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Request: RequestInfo{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.RawQuery,
		},
		Details: details,
	}

	if details == nil && statusCode == http.StatusNotFound {
		if suggestions := generateNotFoundSuggestions(c.Request.URL.Path); len(suggestions) > 0 {
			errorResponse.Details = map[string]interface{}{
				"suggestions": suggestions,
				"message":     "The requested endpoint does not exist. Check the suggestions below for similar endpoints.",
			}
		}
	}

	c.JSON(statusCode, errorResponse)
}

var knownEndpoints = []string{
	"/health",
	"/metrics",
	"/ws",
	"/api/v1/alerts",
	"/api/v1/alerts/highest",
	"/api/v1/alerts/stats",
	"/api/v1/alerts/history",
	"/api/v1/rules",
	"/api/v1/cycles/last",
}

// generateNotFoundSuggestions suggests endpoints sharing a path segment with
// an unknown route. Requests for a missing alert id get no suggestions.
func generateNotFoundSuggestions(path string) []string {
	if strings.HasPrefix(path, "/api/v1/alerts/") {
		return nil
	}

	var suggestions []string
	for _, segment := range strings.Split(strings.ToLower(path), "/") {
		stem := strings.TrimSuffix(segment, "s")
		if stem == "" || segment == "api" || segment == "v1" {
			continue
		}
		for _, endpoint := range knownEndpoints {
			if strings.Contains(endpoint, stem) && !contains(suggestions, endpoint) {
				suggestions = append(suggestions, endpoint)
			}
		}
	}

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
