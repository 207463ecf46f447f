// Package http exposes the ledger services as a JSON API.
//
// This file holds the response builder and the mapping from the error
// taxonomy in core to status codes and error codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"metas/internal/core"
	"metas/internal/log"
)

// Error codes returned in the body of failed requests.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeAlreadyDecided  = "already_decided"
	CodeExhaustedPool   = "exhausted_pool"
	CodeInvalidInput    = "invalid_input"
	CodeBadRequest      = "bad_request"
	CodeTooLarge        = "payload_too_large"
	CodeUpstream        = "upstream_failure"
	CodeInternal        = "internal"
)

// APIError is the error document.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response document.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes no document.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse builds the error document for status and code.
func ErrorResponse(status int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(status).
		Body(map[string]APIError{"error": {Code: code, Message: message}})
}

// BadRequestError creates a 400 for malformed request bodies.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// classify maps err onto a status and error code. The order matters:
// specific conflicts are checked before the general one.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrExhaustedPool):
		return http.StatusConflict, CodeExhaustedPool
	case errors.Is(err, core.ErrAlreadyDecided):
		return http.StatusConflict, CodeAlreadyDecided
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusUnprocessableEntity, CodeInvalidInput
	case errors.Is(err, core.ErrTransportFailure):
		return http.StatusBadGateway, CodeUpstream
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError logs err and answers with its mapped status. Server-side
// failures never leak their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	apiErr := APIError{Code: code, Message: err.Error()}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		apiErr.Fields = verr.Fields
	}

	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err).WithErrorType(code)
	fields[log.FieldPath] = r.URL.Path
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		apiErr.Message = http.StatusText(status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}

	NewJSONResponse().Status(status).Body(map[string]APIError{"error": apiErr}).Write(w)
}

// writeDecodeError answers a body that could not be read or parsed.
// Validation errors raised while parsing keep their 422.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error()).Write(w)
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, r, err)
	default:
		BadRequestError(err.Error()).Write(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
