package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", core.ErrNotAuthenticated, http.StatusUnauthorized, CodeUnauthenticated},
		{"forbidden", fmt.Errorf("goal g: %w", core.ErrForbidden), http.StatusForbidden, CodeForbidden},
		{"not found", core.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"exhausted", core.ErrExhaustedPool, http.StatusConflict, CodeExhaustedPool},
		{"already decided", fmt.Errorf("decide: %w", core.ErrAlreadyDecided), http.StatusConflict, CodeAlreadyDecided},
		{"conflict", core.ErrConflict, http.StatusConflict, CodeConflict},
		{"validation", &core.ValidationError{Fields: map[string]string{"title": "required"}}, http.StatusUnprocessableEntity, CodeInvalidInput},
		{"transport", core.Transport("list goals", errors.New("disk I/O error")), http.StatusBadGateway, CodeUpstream},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, CodeUpstream},
		{"other", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, errors.New("sql: connection string leaked"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "leaked")

	rec = httptest.NewRecorder()
	writeError(rec, req, &core.ValidationError{Fields: map[string]string{"slot_count": "must be positive"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]APIError](t, rec)["error"]
	assert.Equal(t, "must be positive", body.Fields["slot_count"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusAccepted).Header("Location", "/x").Write(rec)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/x", rec.Header().Get("Location"))
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}
