package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		app     string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "logs",
			app:     "tracker",
			want:    filepath.Join("logs", "tracker.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./logs",
			app:     "tracker",
			want:    filepath.Join(".", "logs", "tracker.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "tracker"),
			app:     "tracker",
			want:    filepath.Join("/var", "log", "tracker", "tracker.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.app, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	f, path, err := OpenLogFile(dir, "tracker", start)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, LogFilePath(dir, "tracker", start), path)

	_, err = f.WriteString("hello\n")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 5; i++ {
		p := LogFilePath(dir, "tracker", start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, os.WriteFile(p, nil, 0644))
		paths = append(paths, p)
	}
	other := filepath.Join(dir, "overlay.20260101_000000.log")
	require.NoError(t, os.WriteFile(other, nil, 0644))

	removed, err := PruneLogs(dir, "tracker", 2)
	require.NoError(t, err)
	assert.Equal(t, paths[:3], removed)
	for _, p := range paths[3:] {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, other)

	removed, err = PruneLogs(dir, "tracker", 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
