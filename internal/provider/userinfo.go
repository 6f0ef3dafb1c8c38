package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/scopes"
	"crednet-oauth/internal/store"
)

// tokenCacheTTL caps how long a token record may be served from cache;
// revocations invalidate eagerly on top of this.
const tokenCacheTTL = 5 * time.Minute

// UserInfo resolves an access token to the scope-gated projection of the
// user record. Fields outside the token's granted scopes are never
// present, whatever richer data the identity store holds.
func (s *Service) UserInfo(ctx context.Context, accessToken string) (map[string]interface{}, error) {
	token, err := s.lookupToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if token.Revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	user, err := s.identity.GetUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
		}
		return nil, s.storeErr(err)
	}

	info := map[string]interface{}{
		"sub": token.UserID.String(),
	}

	if scopes.Contains(token.Scopes, scopes.Profile) {
		name := user.DisplayName
		if name == "" {
			name = "User"
		}
		info["name"] = name
		if user.PhotoURL != "" {
			info["picture"] = user.PhotoURL
		} else {
			info["picture"] = nil
		}
	}

	if scopes.Contains(token.Scopes, scopes.Email) {
		info["email"] = user.Email
		info["email_verified"] = user.EmailVerified
	}

	if scopes.Contains(token.Scopes, scopes.SymbolicName) {
		symbolic := user.SymbolicName
		if symbolic == "" {
			symbolic = identity.FormatSymbolicName(user.DisplayName)
		}
		info["symbolic_name"] = symbolic
		info["symbolic_name_plain"] = identity.ParseSymbolicName(symbolic)
	}

	if scopes.Contains(token.Scopes, scopes.Tokens) {
		info["token_balance"] = user.TokenBalance
	}

	if scopes.Contains(token.Scopes, scopes.Reputation) {
		reputation := user.Reputation
		if reputation == "" {
			reputation = identity.DefaultReputation
		}
		info["reputation"] = reputation
		info["breadcrumb_score"] = user.BreadcrumbScore
	}

	return info, nil
}

// Revoke permanently invalidates an access token. Revoking twice, or
// revoking a token that never existed, is not an error.
func (s *Service) Revoke(ctx context.Context, accessToken string) error {
	if err := s.store.RevokeToken(ctx, accessToken); err != nil {
		return s.storeErr(err)
	}
	if s.cache != nil {
		s.cache.InvalidateToken(ctx, accessToken)
	}
	return nil
}

// AuthorizedApp is one entry in a user's connected-applications list.
type AuthorizedApp struct {
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	ClientLogo   string    `json:"client_logo,omitempty"`
	Scopes       []string  `json:"scopes"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

// AuthorizedApps lists the clients holding live grants for the user, one
// entry per client: scopes from the newest grant, authorizedAt from the
// oldest.
func (s *Service) AuthorizedApps(ctx context.Context, userID uuid.UUID) ([]*AuthorizedApp, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	tokens, err := s.store.ListTokensByUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}

	type appAgg struct {
		app    *AuthorizedApp
		newest time.Time
	}
	byClient := make(map[string]*appAgg)
	var order []string

	for _, token := range tokens {
		if token.Revoked {
			continue
		}
		agg, ok := byClient[token.ClientID]
		if !ok {
			client, err := s.store.GetClient(ctx, token.ClientID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return nil, s.storeErr(err)
			}
			agg = &appAgg{
				app: &AuthorizedApp{
					ClientID:     token.ClientID,
					ClientName:   client.Name,
					ClientLogo:   client.LogoURL,
					Scopes:       token.Scopes,
					AuthorizedAt: token.CreatedAt,
				},
				newest: token.CreatedAt,
			}
			byClient[token.ClientID] = agg
			order = append(order, token.ClientID)
			continue
		}
		if token.CreatedAt.Before(agg.app.AuthorizedAt) {
			agg.app.AuthorizedAt = token.CreatedAt
		}
		if token.CreatedAt.After(agg.newest) {
			agg.newest = token.CreatedAt
			agg.app.Scopes = token.Scopes
		}
	}

	apps := make([]*AuthorizedApp, 0, len(order))
	for _, clientID := range order {
		apps = append(apps, byClient[clientID].app)
	}
	return apps, nil
}

// RevokeApp revokes every live grant the user has for the client. Returns
// ErrNotFound when there was nothing to revoke.
func (s *Service) RevokeApp(ctx context.Context, userID uuid.UUID, clientID string) error {
	if userID == uuid.Nil {
		return ErrUnauthenticated
	}

	tokens, err := s.store.ListTokensByUser(ctx, userID)
	if err != nil {
		return s.storeErr(err)
	}

	revoked, err := s.store.RevokeTokensForUserClient(ctx, userID, clientID)
	if err != nil {
		return s.storeErr(err)
	}
	if revoked == 0 {
		return ErrNotFound
	}

	if s.cache != nil {
		for _, token := range tokens {
			if token.ClientID == clientID {
				s.cache.InvalidateToken(ctx, token.AccessToken)
			}
		}
	}
	return nil
}

// lookupToken fetches a token record, via the cache when configured.
func (s *Service) lookupToken(ctx context.Context, accessToken string) (*store.Token, error) {
	if s.cache != nil {
		if token, err := s.cache.GetToken(ctx, accessToken); err == nil {
			return token, nil
		}
	}

	token, err := s.store.GetTokenByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown token", ErrInvalidToken)
		}
		return nil, s.storeErr(err)
	}

	if s.cache != nil && !token.Revoked {
		s.cache.SetToken(ctx, accessToken, token, tokenCacheTTL)
	}
	return token, nil
}
