// Package database opens the session recording database: PostgreSQL for
// shared setups, SQLite for the local in-memory store and its dumps.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/tarkov-map/tracker/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database kinds.
const (
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// DumpExt is the extension of SQLite dumps.
const DumpExt = ".db"

// memoryDSN names a fresh in-memory database. The shared cache lets the
// pool's connections see one database; the name keeps it private.
func memoryDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

// DB is an open recording database.
type DB struct {
	*gorm.DB
	Kind string
	Path string // SQLite file; empty for in-memory and postgres
}

// OpenPostgres connects and pings. maxConns <= 0 keeps the driver default.
func OpenPostgres(dsn string, maxConns int) (*DB, error) {
	g, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        5000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to validate postgres connection: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	return &DB{DB: g, Kind: KindPostgres}, nil
}

// OpenSQLite opens or creates the SQLite file at path. An empty path opens
// a new in-memory database private to the returned DB.
func OpenSQLite(path string) (*DB, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN()
	}
	g, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", dsn, err)
	}
	for _, p := range sqlitePragmas {
		if err := g.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("setting %q: %w", p, err)
		}
	}
	return &DB{DB: g, Kind: KindSQLite, Path: path}, nil
}

// OpenDump opens an existing SQLite file such as a session dump.
func OpenDump(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	return OpenSQLite(path)
}

// Migrate creates or updates the recording tables.
func (d *DB) Migrate() error {
	return Migrate(d.DB)
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the recording tables on db.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Dump snapshots a SQLite database to path. The snapshot is written next
// to path and renamed over it, so readers never see a partial file.
func Dump(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("dump path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	tmp := path + ".tmp"
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale snapshot: %w", err)
	}
	if err := db.Exec("VACUUM INTO '" + strings.ReplaceAll(tmp, "'", "''") + "'").Error; err != nil {
		return fmt.Errorf("snapshot to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing dump: %w", err)
	}
	return nil
}

// ListDumps returns the dumps in dir, newest first. Dump names embed their
// start time, so name order is time order.
func ListDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), DumpExt) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	slices.Reverse(paths)
	return paths, nil
}

// ResolveDump returns path itself, or the newest dump when path is a
// directory.
func ResolveDump(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	dumps, err := ListDumps(path)
	if err != nil {
		return "", err
	}
	if len(dumps) == 0 {
		return "", fmt.Errorf("no %s dumps in %s", DumpExt, path)
	}
	return dumps[0], nil
}
