package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/repository/filestore"
	"github.com/sakif/clinic-links/internal/repository/sqlite"
)

func newLocal(t *testing.T) Backend {
	t.Helper()
	store, err := filestore.New(t.TempDir(), "440_")
	require.NoError(t, err)
	return NewLocal(store, auth.NewPasswordServiceForTest(4), time.Hour)
}

func newHybrid(t *testing.T) Backend {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHybrid(db, auth.NewPasswordServiceForTest(4), time.Hour)
}

// fakeIdentity keeps the admin account, plus any other accounts in
// others, and hands out numbered tokens.
type fakeIdentity struct {
	mu       sync.Mutex
	email    string
	password string
	others   map[string]string
	n        int
	revoked  map[string]bool
	down     bool
}

func (f *fakeIdentity) next() *oauth2.Token {
	f.n++
	return &oauth2.Token{
		AccessToken:  "tok-" + string(rune('0'+f.n)),
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func (f *fakeIdentity) SignUp(_ context.Context, email, password string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email, f.password = email, password
	return f.next(), nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, password string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, apperror.Unavailable("identity provider unreachable", errors.New("down"))
	}
	if email == f.email && password == f.password {
		return f.next(), nil
	}
	if pw, ok := f.others[email]; ok && pw == password {
		return f.next(), nil
	}
	return nil, apperror.Unauthorized("invalid credentials")
}

func (f *fakeIdentity) Refresh(_ context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, apperror.Unavailable("identity provider unreachable", errors.New("down"))
	}
	if f.revoked[tok.AccessToken] {
		return nil, apperror.Unauthorized("identity provider rejected the session")
	}
	return tok, nil
}

func (f *fakeIdentity) UpdateUser(_ context.Context, _ *oauth2.Token, email, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email, f.password = email, password
	return nil
}

func (f *fakeIdentity) SignOut(_ context.Context, tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[tok.AccessToken] = true
	return nil
}

func newHosted(t *testing.T) (Backend, *fakeIdentity) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	id := &fakeIdentity{revoked: map[string]bool{}, others: map[string]string{}}
	return NewHosted(db, id, time.Hour), id
}

func allBackends(t *testing.T) map[string]Backend {
	hosted, _ := newHosted(t)
	return map[string]Backend{
		NameLocal:  newLocal(t),
		NameHybrid: newHybrid(t),
		NameHosted: hosted,
	}
}

func TestBackends_SaveLoad(t *testing.T) {
	for name, b := range allBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Equal(t, name, b.Name())

			records, err := b.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, records)

			require.NoError(t, b.Save(ctx, model.KeyFooter, []byte(`{"text":"x"}`)))

			records, err = b.Load(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"text":"x"}`, string(records[model.KeyFooter]))
		})
	}
}

func TestBackends_CredentialLifecycle(t *testing.T) {
	for name, b := range allBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := model.AdminCredential{Username: "admin@clinic.test", Password: "secret"}
			rotated := model.AdminCredential{Username: "admin@clinic.test", Password: "n3w-secret"}

			ok, err := b.Configured(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = b.SignIn(ctx, old)
			assert.ErrorIs(t, err, apperror.ErrUnauthorized, "nobody can sign in before setup")

			sess, err := b.SignUp(ctx, old)
			require.NoError(t, err)
			assert.Equal(t, old.Username, sess.Subject)
			assert.NotEmpty(t, sess.ID)
			assert.Equal(t, name != NameHosted, sess.Transient)
			require.NoError(t, b.CurrentSession(ctx, sess))

			ok, err = b.Configured(ctx)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, b.UpdateCredential(ctx, sess, rotated))
			require.NoError(t, b.SignOut(ctx, sess))
			assert.ErrorIs(t, b.CurrentSession(ctx, sess), apperror.ErrUnauthorized, "a signed-out session stays out")

			_, err = b.SignIn(ctx, old)
			assert.ErrorIs(t, err, apperror.ErrUnauthorized)

			sess, err = b.SignIn(ctx, rotated)
			require.NoError(t, err)
			assert.NoError(t, b.CurrentSession(ctx, sess))
		})
	}
}

func TestStored_HashesCredential(t *testing.T) {
	store, err := filestore.New(t.TempDir(), "440_")
	require.NoError(t, err)
	b := NewLocal(store, auth.NewPasswordServiceForTest(4), time.Hour)

	_, err = b.SignUp(context.Background(), model.AdminCredential{Username: "admin", Password: "secret"})
	require.NoError(t, err)

	u, err := store.GetAdmin(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "secret", u.PasswordHash)
	assert.Contains(t, u.PasswordHash, "$2")
}

func TestHosted_SignOutDropsSession(t *testing.T) {
	b, _ := newHosted(t)
	ctx := context.Background()

	sess, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)
	other, err := b.SignIn(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, b.SignOut(ctx, sess))

	assert.ErrorIs(t, b.CurrentSession(ctx, sess), apperror.ErrUnauthorized)
	assert.NoError(t, b.CurrentSession(ctx, other), "other sessions survive a sign-out")
}

func TestHosted_RevokedUpstream(t *testing.T) {
	b, id := newHosted(t)
	ctx := context.Background()

	sess, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	id.mu.Lock()
	id.revoked["tok-1"] = true
	id.mu.Unlock()

	assert.ErrorIs(t, b.CurrentSession(ctx, sess), apperror.ErrUnauthorized)
	assert.ErrorIs(t, b.CurrentSession(ctx, sess), apperror.ErrUnauthorized, "a rejected session is forgotten")
}

func TestHosted_UnknownSession(t *testing.T) {
	b, _ := newHosted(t)

	sess := auth.NewSession("dr@clinic.test", time.Hour, false)
	assert.ErrorIs(t, b.CurrentSession(context.Background(), sess), apperror.ErrUnauthorized)
	assert.NoError(t, b.SignOut(context.Background(), sess))
}

func TestHosted_ProviderDown(t *testing.T) {
	b, id := newHosted(t)
	ctx := context.Background()

	_, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	id.mu.Lock()
	id.down = true
	id.mu.Unlock()

	_, err = b.SignIn(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestHosted_RecordsIdentityRow(t *testing.T) {
	b, _ := newHosted(t)
	ctx := context.Background()

	_, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	records, err := b.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"dr@clinic.test"}`, string(records[IdentityKey]))
}

func TestHosted_OnlyRecordedAdminSignsIn(t *testing.T) {
	b, id := newHosted(t)
	ctx := context.Background()

	_, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	id.mu.Lock()
	id.others["stranger@else.test"] = "pw"
	id.mu.Unlock()

	_, err = b.SignIn(ctx, model.AdminCredential{Username: "stranger@else.test", Password: "pw"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	sess, err := b.SignIn(ctx, model.AdminCredential{Username: "DR@clinic.test", Password: "secret"})
	require.NoError(t, err, "email match ignores case")
	assert.NoError(t, b.CurrentSession(ctx, sess))
}

func TestHosted_RecordedAdminSurvivesRestart(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	id := &fakeIdentity{revoked: map[string]bool{}, others: map[string]string{"stranger@else.test": "pw"}}
	ctx := context.Background()

	_, err = NewHosted(db, id, time.Hour).SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	restarted := NewHosted(db, id, time.Hour)
	_, err = restarted.SignIn(ctx, model.AdminCredential{Username: "stranger@else.test", Password: "pw"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = restarted.SignIn(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	assert.NoError(t, err)
}

func TestHosted_OutageKeepsSession(t *testing.T) {
	b, id := newHosted(t)
	ctx := context.Background()

	sess, err := b.SignUp(ctx, model.AdminCredential{Username: "dr@clinic.test", Password: "secret"})
	require.NoError(t, err)

	id.mu.Lock()
	id.down = true
	id.mu.Unlock()
	assert.NoError(t, b.CurrentSession(ctx, sess), "an unreachable provider does not end the session")

	id.mu.Lock()
	id.down = false
	id.mu.Unlock()
	assert.NoError(t, b.CurrentSession(ctx, sess))
}
