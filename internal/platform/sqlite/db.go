// Package sqlite opens the embedded SQLite database used as the default durable backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// DB pairs a single-connection writer with a small reader pool.
// SQLite allows one writer at a time; funnelling writes through one
// connection avoids "database is locked" errors under concurrent revocations.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	dsn    string
}

// Open opens the database file at path in WAL mode and applies migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", path, pragmas)
	return open(ctx, dsn)
}

// OpenMemory opens a named shared-cache in-memory database with migrations
// applied. Distinct names give isolated databases.
func OpenMemory(ctx context.Context, name string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(name), pragmas)
	return open(ctx, dsn)
}

func open(ctx context.Context, dsn string) (*DB, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	db := &DB{Writer: writer, Reader: reader, dsn: dsn}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Health pings the writer connection.
func (db *DB) Health(ctx context.Context) error {
	if db == nil || db.Writer == nil {
		return fmt.Errorf("sqlite not configured")
	}
	return db.Writer.PingContext(ctx)
}

// Close closes both pools, returning the first error.
func (db *DB) Close() error {
	var firstErr error
	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}
