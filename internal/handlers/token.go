package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"crednet-oauth/internal/provider"
)

// Token handles the token endpoint for the authorization_code and
// refresh_token grants. Client credentials come from the form body or
// HTTP Basic auth.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.sendError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
		return
	}

	clientID := r.FormValue("client_id")
	clientSecret := r.FormValue("client_secret")
	if clientID == "" {
		clientID, clientSecret = extractBasicAuth(r)
	}

	var grant *provider.TokenGrant
	var err error

	switch r.FormValue("grant_type") {
	case "authorization_code":
		grant, err = h.provider.Exchange(r.Context(), &provider.ExchangeRequest{
			Code:         r.FormValue("code"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  r.FormValue("redirect_uri"),
		})
		if err == nil {
			h.metrics.IncrementTokensIssued()
		}
	case "refresh_token":
		grant, err = h.provider.Refresh(r.Context(), &provider.RefreshRequest{
			RefreshToken: r.FormValue("refresh_token"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
		})
		if err == nil {
			h.metrics.IncrementTokensRefreshed()
		}
	default:
		h.sendError(w, "unsupported_grant_type", "Grant type not supported", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.metrics.IncrementFailedExchanges()
		h.sendOAuthError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, grant)
}

// UserInfo resolves the bearer token to the scope-gated user projection.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.sendError(w, "invalid_request", "Bearer token required", http.StatusUnauthorized)
		return
	}

	info, err := h.provider.UserInfo(r.Context(), token)
	if err != nil {
		h.sendOAuthError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// Revoke invalidates an access token. The response is 200 whether or
// not the token existed, so callers learn nothing about other clients'
// tokens.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.sendError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
		return
	}

	token := r.FormValue("token")
	if token == "" {
		h.sendError(w, "invalid_request", "Token parameter required", http.StatusBadRequest)
		return
	}

	if err := h.provider.Revoke(r.Context(), token); err != nil {
		h.sendOAuthError(w, err)
		return
	}

	h.metrics.IncrementTokensRevoked()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func extractBasicAuth(r *http.Request) (clientID, clientSecret string) {
	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", ""
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", ""
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
