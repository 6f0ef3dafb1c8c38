package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"crednet-oauth/internal/cache"
	"crednet-oauth/internal/config"
	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/scopes"
	"crednet-oauth/internal/store"
)

// clientCacheTTL bounds how stale a cached client record may be; a
// deactivation is also pushed through an explicit invalidation.
const clientCacheTTL = 5 * time.Minute

// Service implements the authorization-code grant: client registry,
// authorization codes, token lifecycle, scoped user-info projection, and
// revocation. All protocol state lives in the injected store; the service
// itself holds nothing between requests.
type Service struct {
	store    store.Store
	identity identity.Store
	cache    cache.Cache // optional
	cfg      *config.Config
}

func NewService(st store.Store, users identity.Store, c cache.Cache, cfg *config.Config) *Service {
	return &Service{
		store:    st,
		identity: users,
		cache:    c,
		cfg:      cfg,
	}
}

// ClientRegistration is the owner-supplied part of a new client record.
type ClientRegistration struct {
	Name         string   `json:"name"`
	LogoURL      string   `json:"logo_url,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes,omitempty"`
}

// ClientCredentials carries the one-time plaintext secret. The server
// keeps only a bcrypt hash; there is no read path that returns the secret
// again.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterClient creates a client record owned by ownerID and returns its
// credentials. The secret is shown exactly once.
func (s *Service) RegisterClient(ctx context.Context, ownerID uuid.UUID, reg *ClientRegistration) (*ClientCredentials, error) {
	if ownerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if reg.Name == "" {
		return nil, fmt.Errorf("%w: client name required", ErrInvalidClient)
	}
	if len(reg.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%w: at least one redirect URI required", ErrInvalidRedirectURI)
	}
	for _, raw := range reg.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidRedirectURI, raw)
		}
	}

	allowed := reg.Scopes
	if len(allowed) == 0 {
		allowed = scopes.Default
	}
	for _, scope := range allowed {
		if !scopes.IsRecognized(scope) {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, scope)
		}
	}

	clientID, err := newClientID()
	if err != nil {
		return nil, err
	}
	clientSecret, err := newClientSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	client := &store.Client{
		ClientID:      clientID,
		SecretHash:    string(secretHash),
		Name:          reg.Name,
		LogoURL:       reg.LogoURL,
		RedirectURIs:  reg.RedirectURIs,
		AllowedScopes: allowed,
		OwnerID:       ownerID,
		Active:        true,
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, s.storeErr(err)
	}

	return &ClientCredentials{ClientID: clientID, ClientSecret: clientSecret}, nil
}

// GetClient resolves an active client. Inactive clients behave as
// not-found for all authorization purposes.
func (s *Service) GetClient(ctx context.Context, clientID string) (*store.Client, error) {
	client, err := s.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, ErrNotFound
	}
	return client, nil
}

// ListClients returns every client owned by the user, including
// deactivated ones. Secret hashes are for the server only; handlers elide
// them.
func (s *Service) ListClients(ctx context.Context, ownerID uuid.UUID) ([]*store.Client, error) {
	if ownerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	clients, err := s.store.ListClientsByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return clients, nil
}

// DeactivateClient soft-disables a client. Only the owner may do it;
// records are never deleted.
func (s *Service) DeactivateClient(ctx context.Context, ownerID uuid.UUID, clientID string) error {
	if ownerID == uuid.Nil {
		return ErrUnauthenticated
	}
	if err := s.store.DeactivateClient(ctx, clientID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return s.storeErr(err)
	}
	if s.cache != nil {
		s.cache.InvalidateClient(ctx, clientID)
	}
	return nil
}

// Authorize records that userID approved clientID for requestedScopes,
// bound to redirectURI, and returns a single-use code valid for the
// configured TTL.
func (s *Service) Authorize(ctx context.Context, userID uuid.UUID, clientID string, requestedScopes []string, redirectURI string) (string, error) {
	if userID == uuid.Nil {
		return "", ErrUnauthenticated
	}

	client, err := s.lookupClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidClient
		}
		return "", err
	}
	if !client.Active {
		return "", ErrInvalidClient
	}

	// Exact string match only. Prefix or same-origin matching would open
	// the redirect to attacker-controlled paths.
	if !containsString(client.RedirectURIs, redirectURI) {
		return "", ErrInvalidRedirectURI
	}

	granted := requestedScopes
	if len(granted) == 0 {
		granted = client.AllowedScopes
	}
	if !scopes.Subset(granted, client.AllowedScopes) {
		return "", ErrInvalidScope
	}

	code, err := newAuthCode()
	if err != nil {
		return "", err
	}

	authCode := &store.AuthorizationCode{
		Code:        code,
		UserID:      userID,
		ClientID:    clientID,
		Scopes:      granted,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Now().Add(s.cfg.Auth.AuthorizationCodeTTL),
	}
	if err := s.store.CreateAuthorizationCode(ctx, authCode); err != nil {
		return "", s.storeErr(err)
	}

	return code, nil
}

// RedirectURL appends code and the caller's opaque state to the redirect
// URI. State is echoed verbatim, never interpreted.
func (s *Service) RedirectURL(redirectURI, code, state string) string {
	u, _ := url.Parse(redirectURI)
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrorRedirectURL builds the failure redirect carrying error,
// error_description and the echoed state.
func (s *Service) ErrorRedirectURL(redirectURI, errorType, description, state string) string {
	u, _ := url.Parse(redirectURI)
	q := u.Query()
	q.Set("error", errorType)
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// lookupClient fetches a client record through the cache when one is
// configured. The active flag is checked by callers, so deactivated
// records may be cached too.
func (s *Service) lookupClient(ctx context.Context, clientID string) (*store.Client, error) {
	if s.cache != nil {
		if client, err := s.cache.GetClient(ctx, clientID); err == nil {
			return client, nil
		}
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.storeErr(err)
	}

	if s.cache != nil {
		s.cache.SetClient(ctx, clientID, client, clientCacheTTL)
	}
	return client, nil
}

// verifyClientSecret authenticates a confidential client. bcrypt's
// comparison does not leak timing about how much of the secret matched.
func (s *Service) verifyClientSecret(client *store.Client, secret string) error {
	if secret == "" {
		return ErrInvalidClient
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return ErrInvalidClient
	}
	return nil
}

func (s *Service) storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func containsString(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
