// Package postgres implements storage.Backend on a PostgreSQL server.
// Writes go through the shared GORM batch writer.
package postgres

import (
	"log/slog"
	"time"

	"github.com/tarkov-map/tracker/internal/database"
	gormstorage "github.com/tarkov-map/tracker/internal/storage/gorm"
)

const maxConns = 10

// Config holds configuration for the postgres backend.
type Config struct {
	DSN           string
	FlushInterval time.Duration
}

// Backend wraps the GORM backend with a postgres connection.
type Backend struct {
	*gormstorage.Backend
	db     *database.DB
	cfg    Config
	logger *slog.Logger
}

// New creates a postgres backend. The connection is opened by Init.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Init connects, validates the connection and starts the writer.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg.DSN, maxConns)
	if err != nil {
		return err
	}
	b.db = db

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db.DB,
		Logger:        b.logger,
		FlushInterval: b.cfg.FlushInterval,
	})
	if err := b.Backend.Init(); err != nil {
		_ = db.Close()
		return err
	}
	b.logger.Info("Connected to postgres")
	return nil
}

// Close flushes pending rows and closes the connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.db.Close()
}
