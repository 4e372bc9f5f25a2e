package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
)

func testContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func TestSendSuccess(t *testing.T) {
	c, w := testContext(http.MethodGet, "/api/v1/alerts")
	SendSuccess(c, map[string]int{"total": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestSendAppError(t *testing.T) {
	c, w := testContext(http.MethodPost, "/api/v1/alerts/x/dismiss")
	SendAppError(c, apperrors.WithDetails(apperrors.ErrNotFound, "alert x is not active"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Resource not found", resp.Error)
	assert.Equal(t, "/api/v1/alerts/x/dismiss", resp.Request.Path)
}

func TestSendAppError_HidesInternalErrors(t *testing.T) {
	c, w := testContext(http.MethodGet, "/api/v1/alerts/history?source=db")
	SendAppError(c, errors.New("sql: database is locked"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database is locked")
}

func TestGenerateNotFoundSuggestions(t *testing.T) {
	assert.Contains(t, generateNotFoundSuggestions("/api/v1/rule"), "/api/v1/rules")
	assert.Contains(t, generateNotFoundSuggestions("/api/v1/cycle"), "/api/v1/cycles/last")
	assert.Empty(t, generateNotFoundSuggestions("/api/v1/alerts/missing-id"))
}
