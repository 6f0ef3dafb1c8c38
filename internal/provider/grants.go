package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crednet-oauth/internal/scopes"
	"crednet-oauth/internal/store"
)

// ExchangeRequest carries the parameters of an authorization_code token
// request.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// RefreshRequest carries the parameters of a refresh_token token request.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// TokenGrant is the result of a successful exchange or refresh.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Exchange redeems an authorization code for a token grant. The code is
// consumed with an atomic conditional update, so two concurrent
// redemptions yield exactly one grant. Presenting an already-used code
// additionally revokes every token issued from it, since reuse signals
// the code leaked.
func (s *Service) Exchange(ctx context.Context, req *ExchangeRequest) (*TokenGrant, error) {
	authCode, err := s.store.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown authorization code", ErrInvalidGrant)
		}
		return nil, s.storeErr(err)
	}

	if authCode.Used {
		if err := s.store.RevokeTokensForCode(ctx, authCode.ID); err != nil {
			return nil, s.storeErr(err)
		}
		return nil, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
	}

	if time.Now().After(authCode.ExpiresAt) {
		return nil, fmt.Errorf("%w: authorization code expired", ErrInvalidGrant)
	}

	client, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.Active || authCode.ClientID != req.ClientID {
		return nil, ErrInvalidClient
	}
	if err := s.verifyClientSecret(client, req.ClientSecret); err != nil {
		return nil, err
	}

	if authCode.RedirectURI != req.RedirectURI {
		return nil, fmt.Errorf("%w: redirect URI mismatch", ErrInvalidGrant)
	}

	consumed, err := s.store.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if !consumed {
		// Lost a race with a concurrent redemption.
		if err := s.store.RevokeTokensForCode(ctx, authCode.ID); err != nil {
			return nil, s.storeErr(err)
		}
		return nil, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	token, err := s.issueAccessToken(ctx, authCode, refreshToken)
	if err != nil {
		return nil, err
	}

	return &TokenGrant{
		AccessToken:  token.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.Auth.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scopes.Join(token.Scopes),
	}, nil
}

// Refresh issues a new access token for an existing grant. The refresh
// token value, scopes and grant identity carry forward unchanged; the
// previous access token becomes stale but is not actively revoked.
func (s *Service) Refresh(ctx context.Context, req *RefreshRequest) (*TokenGrant, error) {
	grant, err := s.store.GetTokenByRefresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
		}
		return nil, s.storeErr(err)
	}

	if grant.ClientID != req.ClientID {
		return nil, ErrInvalidClient
	}
	client, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if err := s.verifyClientSecret(client, req.ClientSecret); err != nil {
		return nil, err
	}

	accessToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}

	token := &store.Token{
		AccessToken:  accessToken,
		RefreshToken: grant.RefreshToken,
		UserID:       grant.UserID,
		ClientID:     grant.ClientID,
		Scopes:       grant.Scopes,
		CodeID:       grant.CodeID,
		ExpiresAt:    time.Now().Add(s.cfg.Auth.AccessTokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, s.storeErr(err)
	}

	return &TokenGrant{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.Auth.AccessTokenTTL.Seconds()),
		Scope:       scopes.Join(grant.Scopes),
	}, nil
}

func (s *Service) issueAccessToken(ctx context.Context, authCode *store.AuthorizationCode, refreshToken string) (*store.Token, error) {
	accessToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}

	token := &store.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       authCode.UserID,
		ClientID:     authCode.ClientID,
		Scopes:       authCode.Scopes,
		CodeID:       authCode.ID,
		ExpiresAt:    time.Now().Add(s.cfg.Auth.AccessTokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, s.storeErr(err)
	}
	return token, nil
}
