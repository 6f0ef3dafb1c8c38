package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/middleware"
	"crednet-oauth/internal/provider"
)

// Register creates a first-party account and starts a session for it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		PhotoURL    string `json:"photo_url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid_request", "Invalid JSON", http.StatusBadRequest)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" {
		h.sendError(w, "invalid_request", "Email and password are required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		h.sendError(w, "invalid_request", "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = "User"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.sendError(w, "server_error", "Failed to process password", http.StatusInternalServerError)
		return
	}

	user := &identity.User{
		ID:           uuid.New(),
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: string(hash),
		SymbolicName: identity.FormatSymbolicName(req.DisplayName),
		PhotoURL:     req.PhotoURL,
		Reputation:   identity.DefaultReputation,
	}

	if err := h.identity.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			h.sendError(w, "invalid_request", "Email is already registered", http.StatusConflict)
			return
		}
		h.sendError(w, "server_error", "Failed to create account", http.StatusInternalServerError)
		return
	}

	h.issueSession(w, r, user)
}

// Login authenticates an account and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid_request", "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := h.identity.Authenticate(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		h.sendError(w, "invalid_request", "Invalid email or password", http.StatusUnauthorized)
		return
	}

	h.issueSession(w, r, user)
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user *identity.User) {
	token, err := h.sessions.Issue(user.ID)
	if err != nil {
		h.sendError(w, "server_error", "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "crednet_session",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_token": token,
		"user":          user,
	})
}

// CreateClient registers a new OAuth client owned by the session user.
// The plaintext client secret appears in this response and nowhere else.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var reg provider.ClientRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.sendError(w, "invalid_request", "Invalid JSON", http.StatusBadRequest)
		return
	}

	creds, err := h.provider.RegisterClient(r.Context(), middleware.UserID(r.Context()), &reg)
	if err != nil {
		h.sendClientError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, creds)
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.provider.ListClients(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.sendClientError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"clients": clients})
}

func (h *Handler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	err := h.provider.DeactivateClient(r.Context(), middleware.UserID(r.Context()), clientID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			h.sendError(w, "not_found", "No such client owned by this account", http.StatusNotFound)
			return
		}
		h.sendClientError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ListApps returns the third-party applications holding live grants for
// the session user.
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.provider.AuthorizedApps(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.sendClientError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"apps": apps})
}

// RevokeApp disconnects an application by revoking every grant the
// session user gave it.
func (h *Handler) RevokeApp(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	err := h.provider.RevokeApp(r.Context(), middleware.UserID(r.Context()), clientID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			h.sendError(w, "not_found", "No grants found for this application", http.StatusNotFound)
			return
		}
		h.sendClientError(w, err)
		return
	}

	h.metrics.IncrementTokensRevoked()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// sendClientError maps provider errors from the management API onto
// plain HTTP errors rather than OAuth redirect semantics.
func (h *Handler) sendClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrUnauthenticated):
		h.sendError(w, "unauthenticated", "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, provider.ErrInvalidClient),
		errors.Is(err, provider.ErrInvalidRedirectURI),
		errors.Is(err, provider.ErrInvalidScope):
		h.sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, provider.ErrStoreUnavailable):
		h.sendError(w, "temporarily_unavailable", "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.sendError(w, "server_error", "Internal server error", http.StatusInternalServerError)
	}
}
