package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/clinic-links/internal/repository"
)

// compile-time check that *DB implements repository.ContentRepository
var _ repository.ContentRepository = (*DB)(nil)

// LoadAll fetches every row of site_content and returns it keyed by record
// name. Rows for keys this version does not know are returned too; the
// service ignores them.
func (db *DB) LoadAll(ctx context.Context) (map[string][]byte, error) {
	if err := db.Ready(ctx); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM site_content`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading content: %w", err)
	}
	defer rows.Close()

	records := make(map[string][]byte)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning content row: %w", err)
		}
		records[key] = []byte(value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating content: %w", err)
	}

	return records, nil
}

// Upsert writes value under key, replacing any previous value.
//
// ON CONFLICT ... DO UPDATE keeps this a single statement: there is no
// read-modify-write window, and the last writer wins.
func (db *DB) Upsert(ctx context.Context, key string, value []byte) error {
	if err := db.Ready(ctx); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO site_content (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		string(value),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting %s: %w", key, err)
	}
	return nil
}
