package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/hiredeck/gatehouse/internal/server/middleware"
	"github.com/hiredeck/gatehouse/internal/service"
)

// SessionHandler manages login, logout, and identity introspection.
type SessionHandler struct {
	authSvc    *service.AuthService
	sessionTTL time.Duration
}

// NewSessionHandler creates a SessionHandler. A zero TTL defaults to 24h.
func NewSessionHandler(authSvc *service.AuthService, sessionTTL time.Duration) *SessionHandler {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &SessionHandler{authSvc: authSvc, sessionTTL: sessionTTL}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"session_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	PrincipalID int64  `json:"principal_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
}

// Login authenticates a principal and returns a JWT session token.
// POST /api/v1/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, principal, err := h.authSvc.Login(r.Context(), req.Email, req.Password, h.sessionTTL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "Authentication error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:       token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.sessionTTL.Seconds()),
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Name:        principal.Name,
	})
}

// Logout invalidates the current session. JWTs are stateless, so this is a
// no-op on the server side; clients discard their token.
// DELETE /api/v1/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

// Me returns the authenticated identity: the principal, the auth type, and
// for key auth the credential's metadata.
// GET /api/v1/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	resp := map[string]interface{}{
		"auth_type":    string(id.Type),
		"principal_id": id.Principal.ID,
		"email":        id.Principal.Email,
		"name":         id.Principal.Name,
		"tier":         id.Principal.Tier,
	}
	if id.Key != nil {
		resp["api_key_prefix"] = id.Key.KeyPrefix
		resp["api_key_permissions"] = id.Key.Permissions
	}
	writeJSON(w, http.StatusOK, resp)
}
