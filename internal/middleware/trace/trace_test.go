package trace

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/log"
)

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.True(t, strings.HasPrefix(a, "req_"))
	assert.Len(t, a, len("req_")+16)
	assert.NotEqual(t, a, b)
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf, JSON: true})

	var seenID string
	var seenLogger *log.Logger
	h := NewMiddleware(logger, func(*http.Request) string { return "198.51.100.4" }).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = GetRequestID(r.Context())
			seenLogger = log.FromContext(r.Context())
			w.WriteHeader(http.StatusNotFound)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/goals/x", nil))

	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, log.ComponentHTTP, seenLogger.Component())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, seenID, line[log.FieldRequestID])
	assert.Equal(t, "198.51.100.4", line[log.FieldClientIP])
	assert.EqualValues(t, http.StatusNotFound, line[log.FieldStatusCode])
}

func TestMiddlewareRequestIDHeader(t *testing.T) {
	logger := log.Discard()
	var seen string
	h := NewMiddleware(logger, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "upstream-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, strings.HasPrefix(seen, "req_"), "oversized inbound ids are replaced")

	assert.Empty(t, GetRequestID(req.Context()))
}
