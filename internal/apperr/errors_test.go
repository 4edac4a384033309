package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("panel", "p1"), http.StatusNotFound},
		{"validation", NewValidationError("limit", "too big"), http.StatusBadRequest},
		{"conflict", NewConflictError("column", "id", "age"), http.StatusConflict},
		{"wrapped not found", fmt.Errorf("load: %w", NewNotFoundError("view", "")), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewValidationError("offset", "must not be negative"))

	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsConflict(NewConflictError("notification", "", "")))
}

func TestToResponseMasksInternalErrors(t *testing.T) {
	resp := ToResponse(errors.New("pq: password authentication failed"))
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.Equal(t, "internal server error", resp.Message)

	resp = ToResponse(NewInternalError("query failed", errors.New("conn reset")))
	assert.Equal(t, "internal server error", resp.Message)

	resp = ToResponse(NewNotFoundError("panel", "abc"))
	assert.Equal(t, "NOT_FOUND", resp.Code)
	assert.Equal(t, "panel with ID 'abc' not found", resp.Message)
}
