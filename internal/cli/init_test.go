package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/log"
)

func TestGracefulShutdownRunsCleanupOnCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	var cleanupCtx context.Context
	ctx, done := GracefulShutdown(parent, log.Discard(), time.Second, func(c context.Context) {
		cleanupCtx = c
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	require.NotNil(t, cleanupCtx)
	_, hasDeadline := cleanupCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestSetupLoggerReadsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger := SetupLogger(log.ComponentWorker)
	assert.Equal(t, log.ComponentWorker, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
