package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/repository"
)

// IdentityKey is the content-table row recording which account is the
// admin. Its presence is what "configured" means for the hosted backend.
const IdentityKey = "admin_identity"

// Identity is the account API of a hosted identity service.
// *auth.IdentityProvider implements it.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (*oauth2.Token, error)
	SignIn(ctx context.Context, email, password string) (*oauth2.Token, error)
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
	UpdateUser(ctx context.Context, tok *oauth2.Token, email, password string) error
	SignOut(ctx context.Context, tok *oauth2.Token) error
}

var _ Identity = (*auth.IdentityProvider)(nil)

type identityRecord struct {
	Email string `json:"email"`
}

// hosted delegates accounts to an identity service. Each open session maps
// to the provider's token pair; the pair is refreshed whenever the session
// is checked, so a session lasts as long as the provider keeps honouring
// the refresh token (capped by the cookie's own lifetime).
//
// Token pairs live in memory: a restart signs everyone out.
type hosted struct {
	content  repository.ContentRepository
	identity Identity
	ttl      time.Duration

	mu      sync.Mutex
	tokens  map[string]*oauth2.Token
	expires map[string]time.Time
	admin   string // recorded admin email, "" until read
}

// NewHosted keeps content in repo and accounts in identity.
func NewHosted(repo repository.ContentRepository, identity Identity, ttl time.Duration) Backend {
	return &hosted{
		content:  repo,
		identity: identity,
		ttl:      ttl,
		tokens:   make(map[string]*oauth2.Token),
		expires:  make(map[string]time.Time),
	}
}

func (b *hosted) Name() string { return NameHosted }

func (b *hosted) Load(ctx context.Context) (map[string][]byte, error) {
	return b.content.LoadAll(ctx)
}

func (b *hosted) Save(ctx context.Context, key string, value []byte) error {
	return b.content.Upsert(ctx, key, value)
}

func (b *hosted) Configured(ctx context.Context) (bool, error) {
	email, err := b.adminEmail(ctx)
	if err != nil {
		return false, err
	}
	return email != "", nil
}

// adminEmail returns the recorded admin account, or "" when none is
// recorded yet.
func (b *hosted) adminEmail(ctx context.Context) (string, error) {
	b.mu.Lock()
	known := b.admin
	b.mu.Unlock()
	if known != "" {
		return known, nil
	}

	records, err := b.content.LoadAll(ctx)
	if err != nil {
		return "", fmt.Errorf("backend: checking admin identity: %w", err)
	}
	data, ok := records[IdentityKey]
	if !ok {
		return "", nil
	}

	var rec identityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("backend: decoding admin identity: %w", err)
	}

	b.mu.Lock()
	b.admin = rec.Email
	b.mu.Unlock()
	return rec.Email, nil
}

func (b *hosted) SignUp(ctx context.Context, cred model.AdminCredential) (model.Session, error) {
	tok, err := b.identity.SignUp(ctx, cred.Username, cred.Password)
	if err != nil {
		return model.Session{}, err
	}
	if err := b.recordIdentity(ctx, cred.Username); err != nil {
		return model.Session{}, err
	}
	return b.open(cred.Username, tok), nil
}

func (b *hosted) SignIn(ctx context.Context, cred model.AdminCredential) (model.Session, error) {
	admin, err := b.adminEmail(ctx)
	if err != nil {
		return model.Session{}, apperror.Unavailable("could not check the admin account", err)
	}
	// The provider may hold other accounts; only the recorded admin may
	// sign in here.
	if admin == "" || !strings.EqualFold(admin, cred.Username) {
		return model.Session{}, apperror.Unauthorized("invalid credentials")
	}

	tok, err := b.identity.SignIn(ctx, admin, cred.Password)
	if err != nil {
		return model.Session{}, err
	}
	return b.open(admin, tok), nil
}

func (b *hosted) SignOut(ctx context.Context, sess model.Session) error {
	b.mu.Lock()
	tok := b.tokens[sess.ID]
	delete(b.tokens, sess.ID)
	delete(b.expires, sess.ID)
	b.mu.Unlock()

	if tok == nil {
		return nil
	}
	return b.identity.SignOut(ctx, tok)
}

func (b *hosted) CurrentSession(ctx context.Context, sess model.Session) error {
	tok, err := b.token(sess)
	if err != nil {
		return err
	}

	fresh, err := b.identity.Refresh(ctx, tok)
	if errors.Is(err, apperror.ErrUnavailable) {
		// Provider outage: keep the token and the session, try again on
		// the next request.
		return nil
	}
	if err != nil {
		b.forget(sess.ID)
		return err
	}

	b.mu.Lock()
	if _, ok := b.tokens[sess.ID]; ok {
		b.tokens[sess.ID] = fresh
	}
	b.mu.Unlock()
	return nil
}

func (b *hosted) UpdateCredential(ctx context.Context, sess model.Session, cred model.AdminCredential) error {
	tok, err := b.token(sess)
	if err != nil {
		return err
	}
	if err := b.identity.UpdateUser(ctx, tok, cred.Username, cred.Password); err != nil {
		return err
	}
	return b.recordIdentity(ctx, cred.Username)
}

func (b *hosted) recordIdentity(ctx context.Context, email string) error {
	data, err := json.Marshal(identityRecord{Email: email})
	if err != nil {
		return fmt.Errorf("backend: encoding admin identity: %w", err)
	}
	if err := b.content.Upsert(ctx, IdentityKey, data); err != nil {
		return apperror.Unavailable("could not record the admin account", err)
	}

	b.mu.Lock()
	b.admin = email
	b.mu.Unlock()
	return nil
}

// open registers tok under a new session id and drops expired entries.
func (b *hosted) open(subject string, tok *oauth2.Token) model.Session {
	sess := auth.NewSession(subject, b.ttl, false)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for id, exp := range b.expires {
		if now.After(exp) {
			delete(b.tokens, id)
			delete(b.expires, id)
		}
	}
	b.tokens[sess.ID] = tok
	b.expires[sess.ID] = sess.ExpiresAt
	return sess
}

func (b *hosted) token(sess model.Session) (*oauth2.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tok, ok := b.tokens[sess.ID]
	if !ok {
		return nil, apperror.Unauthorized("session not found")
	}
	return tok, nil
}

func (b *hosted) forget(id string) {
	b.mu.Lock()
	delete(b.tokens, id)
	delete(b.expires, id)
	b.mu.Unlock()
}
