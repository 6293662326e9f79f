package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/repository"
	"github.com/sakif/clinic-links/internal/repository/filestore"
	"github.com/sakif/clinic-links/internal/repository/sqlite"
)

// stored keeps the admin credential as a bcrypt hash next to the content.
// Local and hybrid differ only in which store they get.
//
// The signed cookie is the whole session. Signed-out session ids are kept
// until their token would have expired anyway, so a copied cookie stops
// working at logout. The set lives in memory; a restart forgets it.
type stored struct {
	name      string
	content   repository.ContentRepository
	admins    repository.AdminRepository
	passwords *auth.PasswordService
	ttl       time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
}

func newStored(name string, content repository.ContentRepository, admins repository.AdminRepository, passwords *auth.PasswordService, ttl time.Duration) *stored {
	return &stored{
		name:      name,
		content:   content,
		admins:    admins,
		passwords: passwords,
		ttl:       ttl,
		revoked:   make(map[string]time.Time),
	}
}

// NewLocal serves everything from a directory of JSON files.
func NewLocal(store *filestore.Store, passwords *auth.PasswordService, ttl time.Duration) Backend {
	return newStored(NameLocal, store, store, passwords, ttl)
}

// NewHybrid serves content and the admin row from a SQL database.
func NewHybrid(db *sqlite.DB, passwords *auth.PasswordService, ttl time.Duration) Backend {
	return newStored(NameHybrid, db, db, passwords, ttl)
}

func (b *stored) Name() string { return b.name }

func (b *stored) Load(ctx context.Context) (map[string][]byte, error) {
	return b.content.LoadAll(ctx)
}

func (b *stored) Save(ctx context.Context, key string, value []byte) error {
	return b.content.Upsert(ctx, key, value)
}

func (b *stored) Configured(ctx context.Context) (bool, error) {
	_, err := b.admins.GetAdmin(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("backend: checking admin: %w", err)
	}
}

func (b *stored) SignUp(ctx context.Context, cred model.AdminCredential) (model.Session, error) {
	user, err := b.passwords.NewAdmin(cred)
	if err != nil {
		return model.Session{}, err
	}
	if err := b.admins.PutAdmin(ctx, user); err != nil {
		return model.Session{}, apperror.Unavailable("could not save the admin credential", err)
	}
	return auth.NewSession(user.Username, b.ttl, true), nil
}

func (b *stored) SignIn(ctx context.Context, cred model.AdminCredential) (model.Session, error) {
	user, err := b.admins.GetAdmin(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.Session{}, apperror.Unauthorized("invalid credentials")
		}
		return model.Session{}, apperror.Unavailable("could not read the admin credential", err)
	}

	if err := b.passwords.Check(user, cred); err != nil {
		return model.Session{}, err
	}
	return auth.NewSession(user.Username, b.ttl, true), nil
}

func (b *stored) SignOut(_ context.Context, sess model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for id, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, id)
		}
	}
	b.revoked[sess.ID] = sess.ExpiresAt
	return nil
}

func (b *stored) CurrentSession(_ context.Context, sess model.Session) error {
	b.mu.Lock()
	_, gone := b.revoked[sess.ID]
	b.mu.Unlock()
	if gone {
		return apperror.Unauthorized("session ended")
	}
	return nil
}

func (b *stored) UpdateCredential(ctx context.Context, _ model.Session, cred model.AdminCredential) error {
	user, err := b.passwords.NewAdmin(cred)
	if err != nil {
		return err
	}
	if err := b.admins.PutAdmin(ctx, user); err != nil {
		return apperror.Unavailable("could not save the admin credential", err)
	}
	return nil
}
