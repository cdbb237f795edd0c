package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	pgstorage "github.com/tarkov-map/tracker/internal/storage/postgres"
	sqlitestorage "github.com/tarkov-map/tracker/internal/storage/sqlite"
	wsstorage "github.com/tarkov-map/tracker/internal/storage/websocket"
)

// initStorage creates and initialises the configured backend. A postgres
// backend that cannot connect falls back to in-memory SQLite with disk
// dumps.
func initStorage(cfg config.StorageConfig, logger *slog.Logger, start time.Time) (storage.Backend, error) {
	backend, err := createStorageBackend(cfg, logger, start)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		if cfg.Type != "postgres" {
			return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
		}
		logger.Error("Failed to connect to Postgres DB, trying SQLite", "error", err)
		_ = backend.Close()

		cfg.Type = "sqlite"
		if backend, err = createStorageBackend(cfg, logger, start); err != nil {
			return nil, err
		}
		if err := backend.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
	}
	return backend, nil
}

func createStorageBackend(cfg config.StorageConfig, logger *slog.Logger, start time.Time) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Config{
			DSN:           config.GetDBConfig().DSN(),
			FlushInterval: cfg.FlushEvery,
		}, logger), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval:  cfg.SQLite.DumpInterval,
			DumpPath:      timestampedPath(cfg.SQLite.DumpPath, start),
			FlushInterval: cfg.FlushEvery,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized")
		return backend, nil

	case "websocket":
		wsURL := httpToWS(cfg.WebSocket.URL)
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: cfg.WebSocket.Secret,
		}, logger), nil

	case "", "memory":
		logger.Info("Memory storage backend initialized")
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// timestampedPath turns "dir/sessions.db" into "dir/sessions_20240301_120000.db"
// so each run dumps to its own file.
func timestampedPath(path string, start time.Time) string {
	if path == "" {
		return ""
	}
	stamp := start.Format("20060102_150405")
	if i := strings.LastIndex(path, "."); i > strings.LastIndexAny(path, `/\`) {
		return path[:i] + "_" + stamp + path[i:]
	}
	return path + "_" + stamp
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
