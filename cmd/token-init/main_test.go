package main

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/middleware/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    options
	}{
		{"default ttl", []string{"-sub", "alice", "-email", "Alice@Example.com"}, false, options{subject: "alice", email: "alice@example.com", ttl: 24 * time.Hour}},
		{"all flags", []string{"-sub", "bob", "-email", "bob@example.com", "-ttl", "1h"}, false, options{subject: "bob", email: "bob@example.com", ttl: time.Hour}},
		{"missing subject", []string{"-email", "x@example.com"}, true, options{}},
		{"missing email", []string{"-sub", "alice"}, true, options{}},
		{"malformed email", []string{"-sub", "alice", "-email", "not-an-email"}, true, options{}},
		{"negative ttl", []string{"-sub", "alice", "-email", "a@example.com", "-ttl", "-1h"}, true, options{}},
		{"unknown flag", []string{"-nope"}, true, options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("token-init", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			got, err := parseOptions(fs, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunPrintsVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	o := options{subject: "alice", email: "Alice@Example.com", ttl: time.Hour}
	require.NoError(t, run(o, testSecret, &out, time.Now()))

	u, err := auth.NewVerifier(testSecret).Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestRunRejectsShortSecret(t *testing.T) {
	err := run(options{subject: "alice", email: "alice@example.com", ttl: time.Hour}, "short", io.Discard, time.Now())
	assert.Error(t, err)
}
