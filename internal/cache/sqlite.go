package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

// SQLite is a Cache on a local SQLite file, kept separate from the
// shared document store so it survives independently of connectivity.
type SQLite struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (c *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, ErrMiss
	}
	return value, err
}

func (c *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}

func (c *SQLite) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, key)
	return err
}

func (c *SQLite) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := c.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}
