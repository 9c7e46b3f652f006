package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/config"
)

func TestWithAttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}, false)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithUserID(ctx, "u-1")
	ctx = WithIdempotencyKey(ctx, "k-1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tr-1", line["trace_id"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "k-1", line["idempotency_key"])
	assert.Equal(t, "tr-1", TraceIDFrom(ctx))
	assert.Equal(t, "u-1", UserIDFrom(ctx))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}, false)
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	l.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())

	buf.Reset()
	l = newLogger(&buf, config.LogConfig{Level: "bogus"}, false)
	l.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
}
