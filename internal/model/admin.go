package model

import "time"

// AdminCredential is what the operator types into the setup, login and
// security forms. Username holds an email address for the hosted backend.
//
// The password only ever travels inward: stores keep a bcrypt hash (see
// AdminUser) or hand it to the identity provider, and it is never
// serialised back out.
type AdminCredential struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminUser is a stored credential row. The hash is a bcrypt string.
type AdminUser struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is an authenticated admin session.
//
// Transient sessions (local and hybrid backends) last until the browser is
// closed; the cookie carrying them has no Max-Age. Hosted sessions mirror
// the identity provider's token lifetime and survive reloads.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expiresAt"`
	Transient bool      `json:"transient"`
}

// AuthState is the admin gate's view of one visitor.
type AuthState string

const (
	StateUnconfigured AuthState = "unconfigured"
	StateLoggedOut    AuthState = "logged_out"
	StateLoggedIn     AuthState = "logged_in"
)
