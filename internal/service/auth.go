package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/backend"
	"github.com/sakif/clinic-links/internal/model"
)

// AuthService is the admin gate. Its states:
//
//	unconfigured  no admin exists; only Setup is allowed
//	logged_out    an admin exists, this visitor holds no session
//	logged_in     this visitor holds a live session
//
// It decides what is allowed; the backend stores accounts, and the handler
// moves the token in and out of cookies.
type AuthService struct {
	backend  backend.Backend
	tokens   *auth.TokenService
	validate *Validator
	logger   *slog.Logger

	// setupMu makes check-then-create in Setup atomic, so two racing
	// setup forms cannot both create an admin.
	setupMu sync.Mutex
}

var _ auth.SessionValidator = (*AuthService)(nil)

// NewAuthService creates an AuthService.
func NewAuthService(b backend.Backend, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		backend:  b,
		tokens:   tokens,
		validate: NewValidator(),
		logger:   logger,
	}
}

// AuthResult is an opened session and its signed token, ready for the
// cookie.
type AuthResult struct {
	Session model.Session
	Token   string
}

// State reports the gate's state for a visitor. loggedIn is whether the
// request carried a live session (see auth.OptionalAuth).
//
// If the backend cannot say whether an admin exists, the visitor is shown
// logged_out rather than unconfigured: offering setup over an existing
// admin would be worse than offering a login that may fail.
func (s *AuthService) State(ctx context.Context, loggedIn bool) model.AuthState {
	if loggedIn {
		return model.StateLoggedIn
	}

	ok, err := s.backend.Configured(ctx)
	if err != nil {
		s.logger.Warn("could not check admin configuration",
			slog.String("backend", s.backend.Name()),
			slog.String("error", err.Error()),
		)
		return model.StateLoggedOut
	}
	if !ok {
		return model.StateUnconfigured
	}
	return model.StateLoggedOut
}

func normalise(cred model.AdminCredential) model.AdminCredential {
	// Passwords are taken as typed; only the username is trimmed.
	cred.Username = strings.TrimSpace(cred.Username)
	return cred
}

// Setup creates the admin and logs them in. It fails with ErrConflict once
// an admin exists.
func (s *AuthService) Setup(ctx context.Context, cred model.AdminCredential) (*AuthResult, error) {
	cred = normalise(cred)
	if err := s.validate.Struct(cred); err != nil {
		return nil, err
	}

	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	ok, err := s.backend.Configured(ctx)
	if err != nil {
		return nil, apperror.Unavailable("could not check the admin account", err)
	}
	if ok {
		return nil, apperror.Conflict("admin", "an admin is already configured")
	}

	sess, err := s.backend.SignUp(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("service/auth: setting up admin: %w", err)
	}

	s.logger.Info("admin configured",
		slog.String("backend", s.backend.Name()),
		slog.String("username", sess.Subject),
	)
	return s.issue(sess)
}

// Login checks cred and opens a session. A mismatch is ErrUnauthorized.
// There is no lockout.
func (s *AuthService) Login(ctx context.Context, cred model.AdminCredential) (*AuthResult, error) {
	cred = normalise(cred)
	if err := s.validate.Struct(cred); err != nil {
		return nil, err
	}

	sess, err := s.backend.SignIn(ctx, cred)
	if err != nil {
		s.logger.Info("admin login failed",
			slog.String("username", cred.Username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: signing in: %w", err)
	}

	s.logger.Info("admin logged in", slog.String("username", sess.Subject))
	return s.issue(sess)
}

func (s *AuthService) issue(sess model.Session) (*AuthResult, error) {
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session token: %w", err)
	}
	return &AuthResult{Session: sess, Token: token}, nil
}

// Logout ends sess. Backend failures are logged, not returned: the visitor
// is logged out locally either way.
func (s *AuthService) Logout(ctx context.Context, sess model.Session) {
	if err := s.backend.SignOut(ctx, sess); err != nil {
		s.logger.Warn("backend sign-out failed",
			slog.String("session", sess.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("admin logged out", slog.String("username", sess.Subject))
}

// RotateCredential replaces the admin credential. Only a logged-in admin
// may do it. Other open sessions stay valid.
func (s *AuthService) RotateCredential(ctx context.Context, sess model.Session, cred model.AdminCredential) error {
	if sess.Subject == "" {
		return apperror.Unauthorized("admin login required")
	}

	cred = normalise(cred)
	if err := s.validate.Struct(cred); err != nil {
		return err
	}

	if err := s.backend.UpdateCredential(ctx, sess, cred); err != nil {
		return fmt.Errorf("service/auth: rotating credential: %w", err)
	}

	s.logger.Info("admin credential rotated",
		slog.String("by", sess.Subject),
		slog.String("username", cred.Username),
	)
	return nil
}

// ValidateSession asks the backend whether sess is still live.
func (s *AuthService) ValidateSession(ctx context.Context, sess model.Session) error {
	return s.backend.CurrentSession(ctx, sess)
}
