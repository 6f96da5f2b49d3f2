package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"ERROR", LevelError, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestConfigure_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardgate.log")
	require.NoError(t, Configure("WARN", "json", path))
	t.Cleanup(func() { _ = Configure("INFO", "text", "stdout") })

	Info("suppressed %d", 1)
	Warn("session %s aborted", "abc")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, `"msg":"session abc aborted"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestConfigure_TextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.log")
	require.NoError(t, Configure("DEBUG", "text", path))
	t.Cleanup(func() { _ = Configure("INFO", "text", "stdout") })

	assert.True(t, Enabled(LevelDebug))
	Debug("listing %s", "~S1/docs")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, "[DEBUG]")
	assert.True(t, strings.HasSuffix(line, "listing ~S1/docs"))
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	SetLevel("ERROR")
	t.Cleanup(func() { SetLevel("INFO") })

	SetLevel("chatty")
	assert.False(t, Enabled(LevelWarn))
	assert.True(t, Enabled(LevelError))
}
