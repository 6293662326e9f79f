package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/service"
)

// AuthHandler moves admin sessions between the auth service and the
// session cookie.
type AuthHandler struct {
	auth         *service.AuthService
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. cookieSecure should be true
// whenever the site is served over HTTPS.
func NewAuthHandler(authService *service.AuthService, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, cookieSecure: cookieSecure, logger: logger}
}

// SessionResponse describes the visitor's standing with the admin gate.
type SessionResponse struct {
	State   model.AuthState `json:"state"`
	Subject string          `json:"subject,omitempty"`
}

func (h *AuthHandler) sessionResponse(r *http.Request) SessionResponse {
	sess, ok := auth.SessionFromContext(r.Context())
	return SessionResponse{State: h.auth.State(r.Context(), ok), Subject: sess.Subject}
}

// HandleSession reports the gate state.
//
// HTTP: GET /api/session
// Auth: optional
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionResponse(r))
}

// HandleSetup creates the first admin and logs them in.
//
// HTTP: POST /api/auth/setup
// REQUEST BODY: {"username","password"}
func (h *AuthHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	var cred model.AdminCredential
	if err := decodeJSON(w, r, &cred); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Setup(r.Context(), cred)
	if err != nil {
		writeError(w, err)
		return
	}

	h.startSession(w, res)
}

// HandleLogin opens a session.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"username","password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var cred model.AdminCredential
	if err := decodeJSON(w, r, &cred); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), cred)
	if err != nil {
		writeError(w, err)
		return
	}

	h.startSession(w, res)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, res *service.AuthResult) {
	auth.SetSessionCookie(w, res.Token, res.Session, h.cookieSecure)
	writeJSON(w, http.StatusOK, SessionResponse{State: model.StateLoggedIn, Subject: res.Session.Subject})
}

// HandleLogout ends the session, if any, and drops the cookie. It always
// succeeds.
//
// HTTP: POST /api/auth/logout
// Auth: optional
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		h.auth.Logout(r.Context(), sess)
	}

	auth.ClearSessionCookie(w, h.cookieSecure)
	writeJSON(w, http.StatusOK, SessionResponse{State: h.auth.State(r.Context(), false)})
}

// HandleRotate replaces the admin credential. The caller stays logged in.
//
// HTTP: PUT /api/auth/credentials
// Auth: admin
func (h *AuthHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		// RequireAdmin guards this route; reaching here is a wiring bug.
		writeError(w, apperror.Unauthorized("admin login required"))
		return
	}

	var cred model.AdminCredential
	if err := decodeJSON(w, r, &cred); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.RotateCredential(r.Context(), sess, cred); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "credentials updated"})
}
