package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"crednet-oauth/internal/provider"
	"crednet-oauth/internal/scopes"
)

var scopeDescriptions = map[string]string{
	scopes.Profile:      "View your display name and profile photo",
	scopes.Email:        "View your email address",
	scopes.SymbolicName: "View your symbolic name",
	scopes.Tokens:       "View your token balance",
	scopes.Reputation:   "View your reputation tier and breadcrumb score",
}

// Authorize serves the consent page on GET and processes the user's
// decision on POST.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.showAuthorizePage(w, r)
		return
	}
	h.handleAuthorizeDecision(w, r)
}

func (h *Handler) showAuthorizePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := strings.TrimSpace(q.Get("client_id"))
	redirectURI := strings.TrimSpace(q.Get("redirect_uri"))
	scope := strings.TrimSpace(q.Get("scope"))
	state := strings.TrimSpace(q.Get("state"))
	responseType := strings.TrimSpace(q.Get("response_type"))

	// A bad client or redirect URI must never trigger a redirect; the
	// user stays on an error page instead.
	if clientID == "" || redirectURI == "" {
		http.Error(w, "invalid_request: client_id and redirect_uri are required", http.StatusBadRequest)
		return
	}
	if responseType != "" && responseType != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if _, err := url.Parse(redirectURI); err != nil {
		http.Error(w, "invalid_request: redirect_uri is not a valid URL", http.StatusBadRequest)
		return
	}

	client, err := h.provider.GetClient(r.Context(), clientID)
	if err != nil {
		http.Error(w, "invalid_client", http.StatusBadRequest)
		return
	}
	if !containsString(client.RedirectURIs, redirectURI) {
		http.Error(w, "invalid_redirect_uri", http.StatusBadRequest)
		return
	}

	requested := scopes.Parse(scope)
	if len(requested) == 0 {
		requested = client.AllowedScopes
	}
	if !scopes.Subset(requested, client.AllowedScopes) {
		redirectURL := h.provider.ErrorRedirectURL(redirectURI, "invalid_scope", "Requested scope exceeds the client grant", state)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}

	descriptions := make([]string, 0, len(requested))
	for _, s := range requested {
		if desc, ok := scopeDescriptions[s]; ok {
			descriptions = append(descriptions, desc)
		} else {
			descriptions = append(descriptions, s)
		}
	}

	data := struct {
		ClientID    string
		ClientName  string
		ClientLogo  string
		RedirectURI string
		Scope       string
		Scopes      []string
		State       string
	}{
		ClientID:    clientID,
		ClientName:  client.Name,
		ClientLogo:  client.LogoURL,
		RedirectURI: redirectURI,
		Scope:       scopes.Join(requested),
		Scopes:      descriptions,
		State:       state,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := authorizeTemplate.Execute(w, data); err != nil {
		h.logger.WithError(err).Error("render authorize page")
	}
}

func (h *Handler) handleAuthorizeDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	action := strings.TrimSpace(r.FormValue("action"))
	clientID := strings.TrimSpace(r.FormValue("client_id"))
	redirectURI := strings.TrimSpace(r.FormValue("redirect_uri"))
	scope := strings.TrimSpace(r.FormValue("scope"))
	state := strings.TrimSpace(r.FormValue("state"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if clientID == "" || redirectURI == "" {
		http.Error(w, "invalid_request: client_id and redirect_uri are required", http.StatusBadRequest)
		return
	}

	client, err := h.provider.GetClient(r.Context(), clientID)
	if err != nil {
		http.Error(w, "invalid_client", http.StatusBadRequest)
		return
	}
	if !containsString(client.RedirectURIs, redirectURI) {
		http.Error(w, "invalid_redirect_uri", http.StatusBadRequest)
		return
	}

	if action == "deny" {
		redirectURL := h.provider.ErrorRedirectURL(redirectURI, "access_denied", "The user denied the request", state)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}

	user, err := h.identity.Authenticate(r.Context(), email, password)
	if err != nil {
		redirectURL := h.provider.ErrorRedirectURL(redirectURI, "access_denied", "Invalid credentials", state)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}

	code, err := h.provider.Authorize(r.Context(), user.ID, clientID, scopes.Parse(scope), redirectURI)
	if err != nil {
		errorType := "server_error"
		description := "Failed to create authorization code"
		switch {
		case errors.Is(err, provider.ErrInvalidScope):
			errorType, description = "invalid_scope", "Requested scope exceeds the client grant"
		case errors.Is(err, provider.ErrStoreUnavailable):
			errorType, description = "temporarily_unavailable", "Service temporarily unavailable"
		}
		redirectURL := h.provider.ErrorRedirectURL(redirectURI, errorType, description, state)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}

	h.metrics.IncrementCodesIssued()
	http.Redirect(w, r, h.provider.RedirectURL(redirectURI, code, state), http.StatusFound)
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

var authorizeTemplate = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authorize {{.ClientName}} - CredNet Social</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 520px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f7fa;
            color: #333;
            line-height: 1.6;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        h2 { color: #2c3e50; text-align: center; }
        .client-info {
            background: #f8f9fa;
            padding: 20px;
            border-radius: 6px;
            margin-bottom: 25px;
            border-left: 4px solid #007bff;
        }
        .client-info img { max-height: 48px; }
        .scopes { background: #e7f3ff; padding: 15px; border-radius: 6px; margin-top: 15px; }
        .scopes ul { margin: 10px 0 0 0; padding-left: 20px; }
        .form-group { margin-bottom: 20px; }
        label { display: block; margin-bottom: 8px; font-weight: 600; color: #555; }
        input {
            width: 100%;
            padding: 12px;
            border: 2px solid #e1e8ed;
            border-radius: 6px;
            font-size: 16px;
            box-sizing: border-box;
        }
        .button-group { display: flex; gap: 12px; margin-top: 30px; }
        button {
            flex: 1;
            padding: 12px 24px;
            border: none;
            border-radius: 6px;
            cursor: pointer;
            font-size: 16px;
            font-weight: 600;
        }
        .btn-authorize { background: #28a745; color: white; }
        .btn-deny { background: #dc3545; color: white; }
    </style>
</head>
<body>
    <div class="container">
        <h2>Authorize Application</h2>
        <div class="client-info">
            {{if .ClientLogo}}<img src="{{.ClientLogo}}" alt="">{{end}}
            <h3>{{.ClientName}}</h3>
            <p>This application is requesting access to your CredNet account.</p>
            {{if .Scopes}}
            <div class="scopes">
                <strong>Requested permissions:</strong>
                <ul>
                    {{range .Scopes}}<li>{{.}}</li>{{end}}
                </ul>
            </div>
            {{end}}
        </div>
        <form method="post">
            <input type="hidden" name="client_id" value="{{.ClientID}}">
            <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
            <input type="hidden" name="scope" value="{{.Scope}}">
            <input type="hidden" name="state" value="{{.State}}">
            <div class="form-group">
                <label for="email">Email</label>
                <input type="email" id="email" name="email" required autocomplete="username">
            </div>
            <div class="form-group">
                <label for="password">Password</label>
                <input type="password" id="password" name="password" required autocomplete="current-password">
            </div>
            <div class="button-group">
                <button type="submit" name="action" value="authorize" class="btn-authorize">Authorize</button>
                <button type="submit" name="action" value="deny" class="btn-deny">Deny</button>
            </div>
        </form>
    </div>
</body>
</html>`))
