// Package auth issues and checks admin sessions.
//
// A session is a signed JWT kept in an HttpOnly cookie:
//
//	sub  the admin's username (or email for the hosted backend)
//	jti  a random session id (xid); the hosted backend keys its
//	     provider tokens by it
//	exp  hard expiry; the cookie may be a browser-session cookie, but the
//	     token itself always expires
//	tr   true when the cookie must not outlive the browser session
//
// Signature checks need only the secret, so the local and hybrid backends
// keep no server-side session state at all.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
)

const issuer = "clinic-links"

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Transient bool `json:"tr,omitempty"`
}

// NewSession starts a session for subject that expires after ttl.
func NewSession(subject string, ttl time.Duration, transient bool) model.Session {
	return model.Session{
		ID:        xid.New().String(),
		Subject:   subject,
		ExpiresAt: time.Now().Add(ttl).Truncate(time.Second),
		Transient: transient,
	}
}

// Issue signs s into a token string.
func (s *TokenService) Issue(sess model.Session) (string, error) {
	if sess.Subject == "" || sess.ID == "" {
		return "", errors.New("auth: session needs a subject and an id")
	}

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.Subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			Issuer:    issuer,
		},
		Transient: sess.Transient,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token string and returns the session it carries.
// Every failure is an apperror.ErrUnauthorized.
//
// WithValidMethods pins HS256 so a token claiming "none" or an RSA
// algorithm is rejected before the key is consulted.
func (s *TokenService) Parse(tokenStr string) (model.Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Session{}, apperror.Unauthorized("session expired")
		}
		return model.Session{}, fmt.Errorf("auth: parsing session token: %w",
			apperror.Unauthorized("invalid session"))
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || c.Subject == "" || c.ID == "" {
		return model.Session{}, apperror.Unauthorized("invalid session")
	}

	return model.Session{
		ID:        c.ID,
		Subject:   c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
		Transient: c.Transient,
	}, nil
}
