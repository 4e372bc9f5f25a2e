package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", ErrNotFound, http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("lookup: %w", ErrConflict), http.StatusConflict},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetStatusCode(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("redis timeout")
	err := Wrap(ErrUnavailable, cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.Code)
	assert.Equal(t, "redis timeout", err.Details)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsAppError(fmt.Errorf("ctx: %w", err)))
	assert.Empty(t, ErrUnavailable.Details)
}

func TestWithDetails(t *testing.T) {
	err := WithDetails(ErrBadRequest, "limit must be positive")
	assert.Equal(t, "code=400, message=Bad request, details=limit must be positive", err.Error())
	assert.Equal(t, "code=400, message=Bad request", ErrBadRequest.Error())
}
