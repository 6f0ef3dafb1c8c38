package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"crednet-oauth/internal/config"
	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/logging"
	"crednet-oauth/internal/middleware"
	"crednet-oauth/internal/monitoring"
	"crednet-oauth/internal/provider"
	"crednet-oauth/internal/scopes"
	"crednet-oauth/internal/sessions"
	"crednet-oauth/internal/store"
)

const testRedirectURI = "https://app.example.com/callback"

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			SessionSecret:        "test-secret",
			SessionTTL:           time.Hour,
			AccessTokenTTL:       time.Hour,
			AuthorizationCodeTTL: 10 * time.Minute,
		},
	}

	logger := logging.New(&logging.Config{Level: "error", Format: "json"})
	oauthStore := store.NewMemory()
	identityStore := identity.NewMemory()
	sessionManager := sessions.NewManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	metrics := monitoring.NewService()
	providerService := provider.NewService(oauthStore, identityStore, nil, cfg)

	handler := NewHandler(providerService, identityStore, sessionManager, metrics, logger)
	mw := middleware.New(logger, metrics, sessionManager, nil)

	router := mux.NewRouter()
	handler.RegisterRoutes(router, mw)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path, sessionToken string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// registerAccount creates an account and returns its session token.
func registerAccount(t *testing.T, router *mux.Router, email string) string {
	t.Helper()

	rec := doJSON(t, router, "POST", "/api/register", "", map[string]string{
		"display_name": "Margaret",
		"email":        email,
		"password":     "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Register returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SessionToken string `json:"session_token"`
	}
	decodeBody(t, rec, &resp)
	if resp.SessionToken == "" {
		t.Fatal("Register should return a session token")
	}
	return resp.SessionToken
}

// registerClient creates a client via the management API.
func registerClient(t *testing.T, router *mux.Router, session string) (clientID, clientSecret string) {
	t.Helper()

	rec := doJSON(t, router, "POST", "/api/clients", session, map[string]interface{}{
		"name":          "Breadcrumb Reader",
		"redirect_uris": []string{testRedirectURI},
		"scopes":        []string{scopes.Profile, scopes.Email},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateClient returned %d: %s", rec.Code, rec.Body.String())
	}

	var creds struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	decodeBody(t, rec, &creds)
	return creds.ClientID, creds.ClientSecret
}

// approveAuthorization posts the consent form and returns the code from
// the redirect.
func approveAuthorization(t *testing.T, router *mux.Router, clientID, email, scope string) string {
	t.Helper()

	form := url.Values{
		"action":       {"authorize"},
		"client_id":    {clientID},
		"redirect_uri": {testRedirectURI},
		"scope":        {scope},
		"state":        {"opaque-state"},
		"email":        {email},
		"password":     {"hunter2hunter2"},
	}
	req := httptest.NewRequest("POST", "/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("Authorize returned %d: %s", rec.Code, rec.Body.String())
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Bad redirect location: %v", err)
	}
	if location.Query().Get("state") != "opaque-state" {
		t.Errorf("State should be echoed verbatim, got %q", location.Query().Get("state"))
	}
	code := location.Query().Get("code")
	if code == "" {
		t.Fatalf("Redirect should carry a code, got %s", rec.Header().Get("Location"))
	}
	return code
}

func exchangeCode(t *testing.T, router *mux.Router, code, clientID, clientSecret string) map[string]interface{} {
	t.Helper()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {testRedirectURI},
	}
	req := httptest.NewRequest("POST", "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Token endpoint returned %d: %s", rec.Code, rec.Body.String())
	}

	var grant map[string]interface{}
	decodeBody(t, rec, &grant)
	return grant
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t)
	registerAccount(t, router, "margaret@example.com")

	rec := doJSON(t, router, "POST", "/api/login", "", map[string]string{
		"email":    "margaret@example.com",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Login returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", "/api/login", "", map[string]string{
		"email":    "margaret@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Login with bad password returned %d", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newTestRouter(t)
	registerAccount(t, router, "margaret@example.com")

	rec := doJSON(t, router, "POST", "/api/register", "", map[string]string{
		"display_name": "Impostor",
		"email":        "margaret@example.com",
		"password":     "hunter2hunter2",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Duplicate register returned %d", rec.Code)
	}
}

func TestClientManagementRequiresSession(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/clients", "", map[string]interface{}{
		"name":          "App",
		"redirect_uris": []string{testRedirectURI},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Unauthenticated client creation returned %d", rec.Code)
	}

	rec = doJSON(t, router, "GET", "/api/apps", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Bad session token returned %d", rec.Code)
	}
}

func TestClientLifecycle(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")

	clientID, clientSecret := registerClient(t, router, session)
	if !strings.HasPrefix(clientID, "crn_") || !strings.HasPrefix(clientSecret, "crns_") {
		t.Errorf("Credentials should carry prefixes, got %s / %s", clientID, clientSecret)
	}

	rec := doJSON(t, router, "GET", "/api/clients", session, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ListClients returned %d", rec.Code)
	}
	var listing struct {
		Clients []struct {
			ClientID   string `json:"client_id"`
			SecretHash string `json:"secret_hash"`
			Active     bool   `json:"active"`
		} `json:"clients"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Clients) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(listing.Clients))
	}
	if listing.Clients[0].SecretHash != "" {
		t.Error("Secret hash must never appear in API responses")
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/clients/%s/deactivate", clientID), session, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Deactivate returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/clients/%s/deactivate", "crn_ghost"), session, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Deactivating unknown client returned %d", rec.Code)
	}
}

func TestAuthorizePageValidation(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, _ := registerClient(t, router, session)

	// Missing client never renders the form or redirects.
	req := httptest.NewRequest("GET", "/oauth/authorize?client_id=crn_ghost&redirect_uri="+url.QueryEscape(testRedirectURI), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown client returned %d", rec.Code)
	}

	// Unregistered redirect URI is a hard 400, not a redirect.
	req = httptest.NewRequest("GET", "/oauth/authorize?client_id="+clientID+"&redirect_uri="+url.QueryEscape("https://evil.example.com/cb"), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Bad redirect URI returned %d", rec.Code)
	}

	// A valid request renders the consent form.
	req = httptest.NewRequest("GET", "/oauth/authorize?client_id="+clientID+"&redirect_uri="+url.QueryEscape(testRedirectURI)+"&response_type=code&scope=profile", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Authorize page returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Breadcrumb Reader") {
		t.Error("Consent page should show the client name")
	}
}

func TestAuthorizeDeny(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, _ := registerClient(t, router, session)

	form := url.Values{
		"action":       {"deny"},
		"client_id":    {clientID},
		"redirect_uri": {testRedirectURI},
		"state":        {"opaque-state"},
	}
	req := httptest.NewRequest("POST", "/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("Deny returned %d", rec.Code)
	}
	location, _ := url.Parse(rec.Header().Get("Location"))
	if location.Query().Get("error") != "access_denied" {
		t.Errorf("Expected access_denied redirect, got %s", rec.Header().Get("Location"))
	}
	if location.Query().Get("state") != "opaque-state" {
		t.Error("State should be echoed on error redirects too")
	}
}

func TestFullAuthorizationCodeFlow(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, clientSecret := registerClient(t, router, session)

	code := approveAuthorization(t, router, clientID, "margaret@example.com", "profile email")
	grant := exchangeCode(t, router, code, clientID, clientSecret)

	if grant["token_type"] != "Bearer" {
		t.Errorf("Expected Bearer token type, got %v", grant["token_type"])
	}
	accessToken, _ := grant["access_token"].(string)
	if accessToken == "" {
		t.Fatal("Grant should include an access token")
	}

	req := httptest.NewRequest("GET", "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Userinfo returned %d: %s", rec.Code, rec.Body.String())
	}

	var info map[string]interface{}
	decodeBody(t, rec, &info)
	if info["name"] != "Margaret" {
		t.Errorf("Expected profile name, got %v", info["name"])
	}
	if info["email"] != "margaret@example.com" {
		t.Errorf("Expected email, got %v", info["email"])
	}
	if _, ok := info["token_balance"]; ok {
		t.Error("Ungranted tokens scope must not appear in userinfo")
	}

	// Replaying the code is rejected.
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {testRedirectURI},
	}
	req = httptest.NewRequest("POST", "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Replay returned %d", rec.Code)
	}
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	if errResp.Error != "invalid_grant" {
		t.Errorf("Expected invalid_grant, got %s", errResp.Error)
	}
}

func TestTokenEndpointErrors(t *testing.T) {
	router := newTestRouter(t)

	form := url.Values{"grant_type": {"password"}}
	req := httptest.NewRequest("POST", "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unsupported grant type returned %d", rec.Code)
	}
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	if errResp.Error != "unsupported_grant_type" {
		t.Errorf("Expected unsupported_grant_type, got %s", errResp.Error)
	}
}

func TestRefreshGrant(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, clientSecret := registerClient(t, router, session)

	code := approveAuthorization(t, router, clientID, "margaret@example.com", "profile")
	grant := exchangeCode(t, router, code, clientID, clientSecret)

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {grant["refresh_token"].(string)},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}
	req := httptest.NewRequest("POST", "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Refresh returned %d: %s", rec.Code, rec.Body.String())
	}
	var refreshed map[string]interface{}
	decodeBody(t, rec, &refreshed)
	if refreshed["access_token"] == grant["access_token"] {
		t.Error("Refresh should mint a fresh access token")
	}
	if _, ok := refreshed["refresh_token"]; ok {
		t.Error("Refresh response should not include a refresh token")
	}
}

func TestRevokeEndpoint(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, clientSecret := registerClient(t, router, session)

	code := approveAuthorization(t, router, clientID, "margaret@example.com", "profile")
	grant := exchangeCode(t, router, code, clientID, clientSecret)
	accessToken := grant["access_token"].(string)

	revoke := func(token string) int {
		form := url.Values{"token": {token}}
		req := httptest.NewRequest("POST", "/oauth/revoke", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if status := revoke(accessToken); status != http.StatusOK {
		t.Fatalf("Revoke returned %d", status)
	}

	req := httptest.NewRequest("GET", "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Userinfo with revoked token returned %d", rec.Code)
	}

	// Revocation is idempotent and silent about unknown tokens.
	if status := revoke(accessToken); status != http.StatusOK {
		t.Errorf("Second revoke returned %d", status)
	}
	if status := revoke("crnat_never_existed"); status != http.StatusOK {
		t.Errorf("Revoking unknown token returned %d", status)
	}
}

func TestAppsListingAndRevocation(t *testing.T) {
	router := newTestRouter(t)
	session := registerAccount(t, router, "margaret@example.com")
	clientID, clientSecret := registerClient(t, router, session)

	code := approveAuthorization(t, router, clientID, "margaret@example.com", "profile")
	grant := exchangeCode(t, router, code, clientID, clientSecret)

	rec := doJSON(t, router, "GET", "/api/apps", session, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ListApps returned %d", rec.Code)
	}
	var listing struct {
		Apps []struct {
			ClientID   string   `json:"client_id"`
			ClientName string   `json:"client_name"`
			Scopes     []string `json:"scopes"`
		} `json:"apps"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Apps) != 1 {
		t.Fatalf("Expected 1 authorized app, got %d", len(listing.Apps))
	}
	if listing.Apps[0].ClientName != "Breadcrumb Reader" {
		t.Errorf("Expected client name in listing, got %s", listing.Apps[0].ClientName)
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/apps/%s/revoke", clientID), session, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("RevokeApp returned %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest("GET", "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+grant["access_token"].(string))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Userinfo after app revocation returned %d", recorder.Code)
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/apps/%s/revoke", clientID), session, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Revoking an already-disconnected app returned %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Health returned %d", rec.Code)
	}
	var health map[string]interface{}
	decodeBody(t, rec, &health)
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
}
