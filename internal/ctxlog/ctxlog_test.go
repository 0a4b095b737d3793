package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, logger := With(ctx, "step", "step.marker.done")
	logger.Info("hello")
	FromContext(ctx).Info("again")

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("step=step.marker.done")))
}
