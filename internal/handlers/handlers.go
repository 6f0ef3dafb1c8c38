// Package handlers exposes the authorization server over HTTP: the
// OAuth endpoints under /oauth, the first-party account and client
// management API under /api, and the operational endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/logging"
	"crednet-oauth/internal/middleware"
	"crednet-oauth/internal/monitoring"
	"crednet-oauth/internal/provider"
	"crednet-oauth/internal/sessions"
)

type Handler struct {
	provider *provider.Service
	identity identity.Store
	sessions *sessions.Manager
	metrics  *monitoring.Service
	logger   *logging.Logger
}

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func NewHandler(prov *provider.Service, users identity.Store, sessionMgr *sessions.Manager, metrics *monitoring.Service, logger *logging.Logger) *Handler {
	return &Handler{
		provider: prov,
		identity: users,
		sessions: sessionMgr,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router, mw *middleware.Middleware) {
	oauth := r.PathPrefix("/oauth").Subrouter()
	oauth.HandleFunc("/authorize", h.Authorize).Methods("GET", "POST")
	oauth.HandleFunc("/token", h.Token).Methods("POST")
	oauth.HandleFunc("/userinfo", h.UserInfo).Methods("GET")
	oauth.HandleFunc("/revoke", h.Revoke).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", h.Register).Methods("POST")
	api.HandleFunc("/login", h.Login).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(mw.RequireUser)
	authed.HandleFunc("/clients", h.CreateClient).Methods("POST")
	authed.HandleFunc("/clients", h.ListClients).Methods("GET")
	authed.HandleFunc("/clients/{client_id}/deactivate", h.DeactivateClient).Methods("POST")
	authed.HandleFunc("/apps", h.ListApps).Methods("GET")
	authed.HandleFunc("/apps/{client_id}/revoke", h.RevokeApp).Methods("POST")

	r.HandleFunc("/health", h.metrics.ServeHealthCheck).Methods("GET")
	r.HandleFunc("/metrics", h.metrics.ServeMetrics).Methods("GET")
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) sendError(w http.ResponseWriter, errorType, description string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{
		Error:            errorType,
		ErrorDescription: description,
	})
}

// sendOAuthError maps a provider error onto the wire error vocabulary.
func (h *Handler) sendOAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrInvalidClient):
		h.sendError(w, "invalid_client", "Client authentication failed", http.StatusUnauthorized)
	case errors.Is(err, provider.ErrInvalidGrant):
		h.sendError(w, "invalid_grant", "Grant is invalid, expired, or already used", http.StatusBadRequest)
	case errors.Is(err, provider.ErrInvalidScope):
		h.sendError(w, "invalid_scope", "Requested scope exceeds the client grant", http.StatusBadRequest)
	case errors.Is(err, provider.ErrInvalidRedirectURI):
		h.sendError(w, "invalid_request", "Redirect URI is not registered for this client", http.StatusBadRequest)
	case errors.Is(err, provider.ErrInvalidToken):
		h.sendError(w, "invalid_token", "Token is invalid, expired, or revoked", http.StatusUnauthorized)
	case errors.Is(err, provider.ErrStoreUnavailable):
		h.sendError(w, "temporarily_unavailable", "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.sendError(w, "server_error", "Internal server error", http.StatusInternalServerError)
	}
}
