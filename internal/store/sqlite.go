// Package store provides storage backends for GPTPipe.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

// sqliteDSNDefaults enables WAL, foreign keys and a busy timeout for concurrent workers.
// Each is added unless the DSN already sets it under any of its go-sqlite3 names.
var sqliteDSNDefaults = []struct {
	names []string
	param string
}{
	{[]string{"_busy_timeout", "_timeout"}, "_busy_timeout=5000"},
	{[]string{"_journal_mode", "_journal"}, "_journal_mode=WAL"},
	{[]string{"_foreign_keys", "_fk"}, "_foreign_keys=on"},
}

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	sqlStore
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	dsn = withSQLiteParams(dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{sqlStore{db: db, d: sqliteDialect, now: func() time.Time { return time.Now().UTC() }}}, nil
}

// withSQLiteParams appends every default parameter the DSN does not already set.
func withSQLiteParams(dsn string) string {
	_, query, _ := strings.Cut(dsn, "?")
	set, _ := url.ParseQuery(query)
	var missing []string
	for _, d := range sqliteDSNDefaults {
		found := false
		for _, name := range d.names {
			if set.Has(name) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, d.param)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "&"
	if !strings.Contains(dsn, "?") {
		sep = "?"
	} else if strings.HasSuffix(dsn, "?") || strings.HasSuffix(dsn, "&") {
		sep = ""
	}
	return dsn + sep + strings.Join(missing, "&")
}
