package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/clinic-links/internal/model"
)

// CookieName is the session cookie.
const CookieName = "session"

// contextKey is unexported so only this package can set or read the
// session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// SessionValidator confirms that a signed session is still live on the
// backend side. The hosted backend, for one, drops sessions whose provider
// token can no longer be refreshed.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sess model.Session) error
}

// RequireAdmin rejects requests without a live session with 401.
func RequireAdmin(tokens *TokenService, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := extractSession(r, tokens, sessions)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"admin login required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// OptionalAuth attaches the session when one is present and live, and lets
// anonymous requests through untouched. The public page uses it to decide
// whether to render the admin controls.
func OptionalAuth(tokens *TokenService, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, err := extractSession(r, tokens, sessions); err == nil {
				r = r.WithContext(WithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the request's session, if any.
func SessionFromContext(ctx context.Context) (model.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(model.Session)
	return sess, ok && sess.Subject != ""
}

func extractSession(r *http.Request, tokens *TokenService, sessions SessionValidator) (model.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return model.Session{}, err
	}

	sess, err := tokens.Parse(cookie.Value)
	if err != nil {
		return model.Session{}, err
	}

	if err := sessions.ValidateSession(r.Context(), sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// SetSessionCookie writes the session cookie. A transient session gets a
// browser-session cookie (no Max-Age), otherwise the cookie lives as long
// as the token.
func SetSessionCookie(w http.ResponseWriter, token string, sess model.Session, secure bool) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !sess.Transient {
		c.MaxAge = int(time.Until(sess.ExpiresAt).Seconds())
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
