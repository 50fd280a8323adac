package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	logger.WithComponent("pool").With("worker", 3).
		Error(context.Background(), errors.New("boom"), "job panicked", "job", 7)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "job panicked", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "pool", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 3, entry["worker"])
	assert.EqualValues(t, 7, entry["job"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: FormatText, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Warn(ctx, nil, "shown warn")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn")
}

func TestOddFieldsAreDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: FormatText, Output: &buf})

	logger.Info(context.Background(), "odd", "key", "value", "dangling")

	out := buf.String()
	assert.Contains(t, out, "key=value")
	assert.NotContains(t, out, "dangling")
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, FormatJSON, ResolveFormat(FormatAuto, &buf))
	assert.Equal(t, FormatText, ResolveFormat(FormatText, &buf))
	assert.Equal(t, FormatJSON, ResolveFormat(FormatJSON, &buf))
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "nothing")
		logger.With("a", 1).WithComponent("c").Info(context.TODO(), "still nothing")
	})
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelInfo, Format: FormatText, Output: &buf})

	_ = parent.With("child", true)
	parent.Info(context.Background(), "parent line")

	assert.False(t, strings.Contains(buf.String(), "child=true"))
}
