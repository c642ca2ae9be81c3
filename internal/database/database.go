// Package database owns the shared SQLite handle: driver selection,
// connection pragmas, and schema migrations. Stores built on it
// (file hashes, observations, the persisted BM25 corpus) receive a *DB.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultOrgID and DefaultProjectID own rows written without an explicit scope.
const (
	DefaultOrgID     = "default"
	DefaultProjectID = "default"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config configures Open.
type Config struct {
	// Path is the database file, or MemoryPath.
	Path string

	// BusyTimeout bounds how long a writer waits for a lock.
	BusyTimeout time.Duration
}

// DefaultConfig returns a config for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, BusyTimeout: 5 * time.Second}
}

// DB is the migrated database handle.
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// Open opens (creating if needed) and migrates the database.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = MemoryPath
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(DriverName, dsn(cfg.Path, int(cfg.BusyTimeout/time.Millisecond)))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db := &DB{DB: sqlDB, path: cfg.Path, logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = " + itoa(int(cfg.BusyTimeout/time.Millisecond)),
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	if cfg.Path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	db.logger.Debug("database_opened", slog.String("path", cfg.Path), slog.String("driver", DriverName))
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		db.logger.Debug("migration_applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT MAX(version_id) FROM goose_db_version WHERE is_applied = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v.Int64, nil
}

// Path returns the database location.
func (db *DB) Path() string { return db.path }

// Execer is satisfied by *sql.DB, *sql.Tx and *DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureProject creates the organization and project rows when missing.
// Empty ids select the defaults.
func EnsureProject(ctx context.Context, ex Execer, orgID, projectID string) error {
	if orgID == "" {
		orgID = DefaultOrgID
	}
	if projectID == "" {
		projectID = DefaultProjectID
	}
	now := time.Now().Unix()
	if _, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO organizations (id, name, slug, settings_json, created_at, updated_at)
		 VALUES (?, ?, ?, '{}', ?, ?)`,
		orgID, orgID, orgID, now, now); err != nil {
		return fmt.Errorf("failed to ensure organization: %w", err)
	}
	if _, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO projects (id, org_id, name, path, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, ?)`,
		projectID, orgID, projectID, now, now); err != nil {
		return fmt.Errorf("failed to ensure project: %w", err)
	}
	return nil
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InArgs converts strings to query arguments.
func InArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// Close checkpoints the WAL and closes the handle. Safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.path != MemoryPath {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.DB.Close()
}

func itoa(n int) string { return strconv.Itoa(n) }
