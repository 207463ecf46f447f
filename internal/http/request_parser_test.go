package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"metas/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Count int `json:"count"`
	}
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{name: "valid", input: `{"count":3}`, want: 3},
		{name: "empty body", input: ``, wantErr: "empty request body"},
		{name: "unknown field", input: `{"count":3,"extra":1}`, wantErr: "malformed JSON"},
		{name: "trailing data", input: `{"count":3}{"count":4}`, wantErr: "trailing data"},
		{name: "wrong type", input: `{"count":"three"}`, wantErr: "malformed JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var got body
			err := decodeJSON(httptest.NewRecorder(), req, &got)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("decodeJSON() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSON() unexpected error: %v", err)
			}
			if got.Count != tt.want {
				t.Errorf("Count = %d, want %d", got.Count, tt.want)
			}
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	big := `{"count":1,"pad":"` + strings.Repeat("x", maxJSONBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var v map[string]any
	if err := decodeJSON(httptest.NewRecorder(), req, &v); !errors.Is(err, errTooLarge) {
		t.Fatalf("decodeJSON() error = %v, want errTooLarge", err)
	}
}

func TestPathInt(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{name: "number", value: "7", want: 7},
		{name: "negative", value: "-2", want: -2},
		{name: "not a number", value: "seven", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("slot", tt.value)
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := pathInt(req, "slot")
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidInput) {
					t.Fatalf("pathInt() error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("pathInt() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("pathInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  receipt.png  ", "receipt.png"},
		{"re\x00ce\x07ipt.pdf", "receipt.pdf"},
		{"line\tone\nline two", "line\tone\nline two"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
