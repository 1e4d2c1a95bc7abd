package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		config:         cfg,
		sessionManager: sm,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login checks the admin credentials and starts a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.config.Admin.AuthEnabled() {
		respondJSON(w, http.StatusOK, LoginResponse{Success: true})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if !h.checkCredentials(req.Username, req.Password) {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	session, err := h.sessionManager.CreateSession(req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.sessionManager.SetSessionCookie(w, r, session)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// checkCredentials compares against the configured admin account.
func (h *AuthHandler) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.config.Admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.config.Admin.PasswordHash), []byte(password))
	return userOK && passErr == nil
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	AuthEnabled   bool   `json:"auth_enabled"`
	Username      string `json:"username,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether the request carries a valid session.
// Without a configured password every request counts as authenticated.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.config.Admin.AuthEnabled() {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: true})
		return
	}

	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil || session.Username != h.config.Admin.Username {
		respondJSON(w, http.StatusOK, StatusResponse{AuthEnabled: true})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		AuthEnabled:   true,
		Username:      session.Username,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
