// Package repository declares the storage contracts the services depend on.
//
// Content records travel as raw JSON: the store only knows keys and bytes,
// the service owns decoding, defaults and migration of old shapes. This
// keeps the three backends interchangeable.
package repository

import (
	"context"

	"github.com/sakif/clinic-links/internal/model"
)

// ContentRepository persists content records by key.
type ContentRepository interface {
	// LoadAll returns every stored record. A key that was never saved is
	// simply absent from the map; that is not an error.
	LoadAll(ctx context.Context) (map[string][]byte, error)
	// Upsert replaces the whole record stored under key.
	Upsert(ctx context.Context, key string, value []byte) error
}

// AdminRepository persists the single admin credential.
type AdminRepository interface {
	// GetAdmin returns apperror.ErrNotFound when no admin is configured yet.
	GetAdmin(ctx context.Context) (*model.AdminUser, error)
	// PutAdmin replaces the stored credential.
	PutAdmin(ctx context.Context, user *model.AdminUser) error
}
