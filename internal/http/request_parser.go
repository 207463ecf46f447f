package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"metas/internal/core"
)

const maxJSONBody = 64 << 10

// errTooLarge marks a body over the configured limit.
var errTooLarge = errors.New("request body too large")

// decodeJSON reads one JSON document into v, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("empty request body")
		default:
			return fmt.Errorf("malformed JSON: %w", err)
		}
	}
	if dec.More() {
		return fmt.Errorf("malformed JSON: trailing data")
	}
	return nil
}

// pathInt reads an integer URL parameter.
func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, &core.ValidationError{Fields: map[string]string{name: "must be an integer"}}
	}
	return v, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

// parseProofUpload reads the multipart proof form: a "file" part and an
// optional "slot" field. A missing or zero slot asks for a fresh draw. The
// returned closer releases the multipart file.
func parseProofUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, goalID string) (core.ProofUpload, io.Closer, error) {
	if r.ContentLength > maxBytes {
		return core.ProofUpload{}, nil, errTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.ProofUpload{}, nil, errTooLarge
		}
		return core.ProofUpload{}, nil, fmt.Errorf("malformed multipart form: %w", err)
	}

	slot := 0
	if v := strings.TrimSpace(r.FormValue("slot")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.ProofUpload{}, nil, &core.ValidationError{Fields: map[string]string{"slot": "must be an integer"}}
		}
		slot = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.ProofUpload{}, nil, &core.ValidationError{Fields: map[string]string{"file": "required"}}
	}

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if !allowedProofTypes[contentType] {
		file.Close()
		return core.ProofUpload{}, nil, &core.ValidationError{Fields: map[string]string{"file": "unsupported type " + contentType}}
	}

	return core.ProofUpload{
		GoalID:      goalID,
		Slot:        slot,
		FileName:    filepath.Base(sanitizeInput(header.Filename)),
		ContentType: contentType,
		Body:        file,
	}, file, nil
}
