package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextFallsBackToProcessLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(false, &buf)

	Info(context.Background()).Str("k", "v").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "v", line["k"])
}

func TestWithContextUsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(false, &buf)

	ctx := NewContext(context.Background(), Logger().With().Str("request_id", "abc").Logger())
	Warn(ctx).Msg("scoped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["request_id"])
	assert.Equal(t, "warn", line["level"])
}
