package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/repository"
)

// compile-time check that *DB implements repository.AdminRepository
var _ repository.AdminRepository = (*DB)(nil)

// GetAdmin returns the configured admin.
//
// LIMIT 1 with an explicit ErrNoRows check: an empty table means "no admin
// configured yet", which the caller treats as the first-run state.
func (db *DB) GetAdmin(ctx context.Context) (*model.AdminUser, error) {
	if err := db.Ready(ctx); err != nil {
		return nil, err
	}

	var u model.AdminUser

	err := db.conn.QueryRowContext(ctx,
		`SELECT username, password_hash, updated_at
		 FROM admin_users
		 ORDER BY id
		 LIMIT 1`,
	).Scan(&u.Username, &u.PasswordHash, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("admin", "default")
		}
		return nil, fmt.Errorf("sqlite: getting admin: %w", err)
	}

	return &u, nil
}

// PutAdmin replaces the stored credential.
//
// There is only ever one admin, so rotation deletes the old row and inserts
// the new one inside a transaction. A changed username would otherwise
// leave the old row behind and keep it valid.
func (db *DB) PutAdmin(ctx context.Context, user *model.AdminUser) error {
	if err := db.Ready(ctx); err != nil {
		return err
	}

	user.UpdatedAt = time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning admin update: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM admin_users`); err != nil {
		return fmt.Errorf("sqlite: clearing admin_users: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO admin_users (username, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		user.Username,
		user.PasswordHash,
		user.UpdatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting admin %s: %w", user.Username, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing admin update: %w", err)
	}
	return nil
}
