package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// Client is a registered third-party OAuth application. SecretHash holds a
// bcrypt hash; the plaintext secret is returned to the owner exactly once
// at registration and never stored.
type Client struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ClientID      string    `json:"client_id" db:"client_id"`
	SecretHash    string    `json:"-" db:"secret_hash"`
	Name          string    `json:"name" db:"name"`
	LogoURL       string    `json:"logo_url,omitempty" db:"logo_url"`
	RedirectURIs  []string  `json:"redirect_uris" db:"redirect_uris"`
	AllowedScopes []string  `json:"allowed_scopes" db:"allowed_scopes"`
	OwnerID       uuid.UUID `json:"owner_id" db:"owner_id"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type AuthorizationCode struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	ClientID    string    `json:"client_id" db:"client_id"`
	Scopes      []string  `json:"scopes" db:"scopes"`
	RedirectURI string    `json:"redirect_uri" db:"redirect_uri"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	Used        bool      `json:"used" db:"used"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Token is one access-token grant record. Successive refreshes of the same
// grant produce new records sharing the RefreshToken value; CodeID points
// at the authorization code the grant was issued from.
type Token struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AccessToken  string    `json:"access_token" db:"access_token"`
	RefreshToken string    `json:"refresh_token" db:"refresh_token"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	ClientID     string    `json:"client_id" db:"client_id"`
	Scopes       []string  `json:"scopes" db:"scopes"`
	CodeID       uuid.UUID `json:"code_id" db:"code_id"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	Revoked      bool      `json:"revoked" db:"revoked"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Store is the persistence layer for OAuth protocol state. Lookups return
// records regardless of expiry or the used/revoked flags; callers decide
// what a stale record means. ConsumeAuthorizationCode is the one atomic
// conditional update: under concurrent redemption of the same code exactly
// one caller observes true.
type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	ListClientsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Client, error)
	DeactivateClient(ctx context.Context, clientID string, ownerID uuid.UUID) error

	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error)

	CreateToken(ctx context.Context, token *Token) error
	GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error)
	GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error)
	ListTokensByUser(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	RevokeToken(ctx context.Context, accessToken string) error
	RevokeTokensForCode(ctx context.Context, codeID uuid.UUID) error
	RevokeTokensForUserClient(ctx context.Context, userID uuid.UUID, clientID string) (int, error)

	DeleteExpiredCodes(ctx context.Context) (int64, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
