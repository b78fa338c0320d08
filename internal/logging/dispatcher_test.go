package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RepairMe/extension/internal/dispatcher"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*DispatcherLogger)
		level string
		msg   string
		attrs map[string]any
	}{
		{
			name:  "debug",
			log:   func(l *DispatcherLogger) { l.Debug("handler finished", "command", ":RECORD:", "count", 42) },
			level: "DEBUG",
			msg:   "handler finished",
			attrs: map[string]any{"command": ":RECORD:", "count": float64(42)},
		},
		{
			name:  "info",
			log:   func(l *DispatcherLogger) { l.Info("queue registered", "queue", "history") },
			level: "INFO",
			msg:   "queue registered",
			attrs: map[string]any{"queue": "history"},
		},
		{
			name:  "error",
			log:   func(l *DispatcherLogger) { l.Error("async handler failed", "command", ":SESSION:END:") },
			level: "ERROR",
			msg:   "async handler failed",
			attrs: map[string]any{"command": ":SESSION:END:"},
		},
		{
			name:  "no attributes",
			log:   func(l *DispatcherLogger) { l.Debug("idle") },
			level: "DEBUG",
			msg:   "idle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			tt.log(NewDispatcherLogger(logger))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.msg, entry["msg"])
			assert.Equal(t, "dispatcher", entry["component"])
			for k, v := range tt.attrs {
				assert.Equal(t, v, entry[k], k)
			}
		})
	}
}

func TestDispatcherLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	dl := NewDispatcherLogger(logger)

	dl.Debug("dropped")
	assert.Zero(t, buf.Len())

	dl.Info("kept")
	assert.Contains(t, buf.String(), `"component":"dispatcher"`)
}
