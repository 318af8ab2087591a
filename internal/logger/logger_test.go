package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return &Logger{slog: slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json stdout", config: Config{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "text stderr", config: Config{Level: "info", Format: "text", Output: "stderr"}},
		{name: "file output", config: Config{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "logs", "leadbot.log")}},
		{name: "invalid level", config: Config{Level: "verbose", Format: "json", Output: "stdout"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "info", Format: "xml", Output: "stdout"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"debug message", "info message", "warn message", "error message"}},
		{level: "info", want: []string{"info message", "warn message", "error message"}},
		{level: "warn", want: []string{"warn message", "error message"}},
		{level: "error", want: []string{"error message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			lvl, ok := parseLevel(tt.level)
			require.True(t, ok)
			log := newBufferLogger(buf, lvl)

			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")
			log.Error("error message", nil)

			var got []string
			for _, line := range decodeLines(t, buf) {
				got = append(got, line["msg"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_ErrorAddsErrorField(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newBufferLogger(buf, slog.LevelDebug)

	log.Error("send failed", errors.New("connection reset"), Field{Key: "lead_id", Value: 7})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "connection reset", lines[0]["error"])
	assert.EqualValues(t, 7, lines[0]["lead_id"])
}

func TestLogger_WithRunAndLead(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newBufferLogger(buf, slog.LevelDebug)

	log.WithRun("a1b2c3d4").WithLead(42, "jane@acme.io").Info("decision")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "a1b2c3d4", lines[0]["run_id"])
	assert.EqualValues(t, 42, lines[0]["lead_id"])
	assert.Equal(t, "jane@acme.io", lines[0]["lead_email"])
}

func TestDiscard(t *testing.T) {
	log := Discard()
	require.NotNil(t, log)
	assert.NotPanics(t, func() {
		log.Error("ignored", errors.New("boom"))
		log.With(Field{Key: "k", Value: "v"}).Info("ignored")
	})
}

func TestRedactor(t *testing.T) {
	newRedacting := func(buf *bytes.Buffer, emails bool) *Logger {
		return &Logger{slog: slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: redactor(emails)}))}
	}

	buf := &bytes.Buffer{}
	newRedacting(buf, false).Info("smtp login",
		Field{Key: "smtp_password", Value: "hunter2"},
		Field{Key: "auth_token", Value: ""},
		Field{Key: "max_tokens", Value: 512},
		Field{Key: "lead_email", Value: "jane@acme.io"})
	line := decodeLines(t, buf)[0]
	assert.Equal(t, "***", line["smtp_password"])
	assert.Equal(t, "", line["auth_token"])
	assert.EqualValues(t, 512, line["max_tokens"])
	assert.Equal(t, "jane@acme.io", line["lead_email"])

	buf.Reset()
	newRedacting(buf, true).WithLead(1, "jane@acme.io").Info("sent", Field{Key: "to", Value: "bob@example.org"})
	line = decodeLines(t, buf)[0]
	assert.Equal(t, "j***@acme.io", line["lead_email"])
	assert.Equal(t, "b***@example.org", line["to"])
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@acme.io", MaskEmail("ann@acme.io"))
	assert.Equal(t, "***", MaskEmail("no-at-sign"))
	assert.Equal(t, "***", MaskEmail("@acme.io"))
}
