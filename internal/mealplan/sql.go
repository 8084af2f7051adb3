package mealplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLPersister keeps keys in a kv_store table. It works against Postgres
// ("postgres") and SQLite ("sqlite").
type SQLPersister struct {
	db *sqlx.DB
}

// NewSQLPersister connects to the database and creates the kv_store table if needed.
func NewSQLPersister(driver, dataSourceName string) (*SQLPersister, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create kv_store table if not exists
	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}

	return &SQLPersister{db: db}, nil
}

// Close closes the database connection.
func (p *SQLPersister) Close() error {
	return p.db.Close()
}

// Load retrieves the value stored for key.
func (p *SQLPersister) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := p.db.GetContext(ctx, &value, p.db.Rebind("SELECT value FROM kv_store WHERE key = ?"), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Nothing stored yet
		}
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(value), nil
}

// Save upserts the value stored for key.
func (p *SQLPersister) Save(ctx context.Context, key string, data []byte) error {
	_, err := p.db.ExecContext(ctx,
		p.db.Rebind("INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at"),
		key,
		string(data),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
