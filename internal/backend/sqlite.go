package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	_ "modernc.org/sqlite"
)

// SQLite stores blobs in a single database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite backend requires a path", kerrors.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite backend: %w", err)
	}

	b := &SQLite{db: db}
	if err := b.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blobs table: %w", err)
	}
	return b, nil
}

func (b *SQLite) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := b.db.Exec(query)
	return err
}

func (b *SQLite) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	query := `
	INSERT INTO blobs (key, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := b.db.ExecContext(ctx, query, key, data, time.Now().Unix()); err != nil {
		return sqliteErr(fmt.Errorf("storing %s: %w", key, err))
	}
	return nil
}

func (b *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, sqliteErr(fmt.Errorf("loading %s: %w", key, err))
	}
	return data, nil
}

func (b *SQLite) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blobs WHERE key = ?`, key).Scan(&n); err != nil {
		return false, sqliteErr(fmt.Errorf("checking %s: %w", key, err))
	}
	return n > 0, nil
}

func (b *SQLite) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, sqliteErr(fmt.Errorf("listing %q: %w", prefix, err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(fmt.Errorf("iterating keys: %w", err))
	}
	return keys, nil
}

func (b *SQLite) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return sqliteErr(fmt.Errorf("deleting %s: %w", key, err))
	}
	return nil
}

func (b *SQLite) Close() error {
	return b.db.Close()
}

// sqliteErr marks lock contention as transient.
func sqliteErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return kerrors.Transient(err)
	}
	return err
}
