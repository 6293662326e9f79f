// Package backend bundles the two things a deployment must provide: a place
// to keep content records and a way to authenticate the admin.
//
// Three deployments exist:
//
//	local   JSON files on disk, bcrypt credential in admin_config
//	hybrid  SQL content table, bcrypt credential in the admin_users table
//	hosted  SQL content table, accounts held by an external identity service
//
// The services above only see the Backend interface.
package backend

import (
	"context"

	"github.com/sakif/clinic-links/internal/model"
)

// Names accepted by the BACKEND setting.
const (
	NameLocal  = "local"
	NameHosted = "hosted"
	NameHybrid = "hybrid"
)

// Backend is one deployment's storage and identity.
type Backend interface {
	// Name is one of the Name constants.
	Name() string

	// Load returns every stored content record by key. Absent keys are
	// missing from the map. An error means the store could not be read.
	Load(ctx context.Context) (map[string][]byte, error)
	// Save replaces the record under key.
	Save(ctx context.Context, key string, value []byte) error

	// Configured reports whether an admin account exists.
	Configured(ctx context.Context) (bool, error)
	// SignUp creates the admin account and opens a session for it.
	SignUp(ctx context.Context, cred model.AdminCredential) (model.Session, error)
	// SignIn checks cred and opens a session; apperror.ErrUnauthorized
	// on mismatch.
	SignIn(ctx context.Context, cred model.AdminCredential) (model.Session, error)
	// SignOut ends sess on the backend side, if it keeps any state.
	SignOut(ctx context.Context, sess model.Session) error
	// CurrentSession confirms a signed session is still live.
	CurrentSession(ctx context.Context, sess model.Session) error
	// UpdateCredential replaces the admin credential. Sessions other than
	// sess stay valid.
	UpdateCredential(ctx context.Context, sess model.Session, cred model.AdminCredential) error
}
