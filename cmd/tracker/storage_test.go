package main

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	pgstorage "github.com/tarkov-map/tracker/internal/storage/postgres"
	sqlitestorage "github.com/tarkov-map/tracker/internal/storage/sqlite"
	wsstorage "github.com/tarkov-map/tracker/internal/storage/websocket"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestHttpToWS(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:5000", "ws://localhost:5000"},
		{"https://example.com/", "wss://example.com"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpToWS(tt.in), tt.in)
	}
}

func TestTimestampedPath(t *testing.T) {
	assert.Equal(t, "", timestampedPath("", start))
	assert.Equal(t, "out/sessions_20240301_120000.db", timestampedPath("out/sessions.db", start))
	assert.Equal(t, "out.d/sessions_20240301_120000", timestampedPath("out.d/sessions", start))
}

func TestCreateStorageBackend(t *testing.T) {
	logger := slog.Default()

	b, err := createStorageBackend(config.StorageConfig{Type: ""}, logger, start)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "sqlite"}, logger, start)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "postgres"}, logger, start)
	require.NoError(t, err)
	assert.IsType(t, &pgstorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{
		Type:      "websocket",
		WebSocket: config.WebSocketConfig{URL: "http://localhost:1"},
	}, logger, start)
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "mongo"}, logger, start)
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestInitStorage_PostgresFallsBackToSQLite(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")

	cfg := config.StorageConfig{
		Type:       "postgres",
		FlushEvery: time.Hour,
		SQLite:     config.SQLiteConfig{DumpPath: filepath.Join(t.TempDir(), "sessions.db")},
	}
	b, err := initStorage(cfg, slog.Default(), start)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	assert.IsType(t, &sqlitestorage.Backend{}, b)
}
