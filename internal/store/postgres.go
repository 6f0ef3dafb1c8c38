package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crednet-oauth/internal/config"
)

// Postgres implements Store on top of PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(cfg *config.DatabaseConfig) (*Postgres, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	p := &Postgres{db: db}
	if err := p.createTables(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Postgres) createTables() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

		`CREATE TABLE IF NOT EXISTS oauth_clients (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			client_id VARCHAR(255) UNIQUE NOT NULL,
			secret_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			logo_url VARCHAR(512) NOT NULL DEFAULT '',
			redirect_uris TEXT[] NOT NULL DEFAULT '{}',
			allowed_scopes TEXT[] NOT NULL DEFAULT '{}',
			owner_id UUID NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS oauth_codes (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			code VARCHAR(255) UNIQUE NOT NULL,
			user_id UUID NOT NULL,
			client_id VARCHAR(255) NOT NULL REFERENCES oauth_clients(client_id),
			scopes TEXT[] NOT NULL DEFAULT '{}',
			redirect_uri VARCHAR(512) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			access_token VARCHAR(255) UNIQUE NOT NULL,
			refresh_token VARCHAR(255) NOT NULL,
			user_id UUID NOT NULL,
			client_id VARCHAR(255) NOT NULL REFERENCES oauth_clients(client_id),
			scopes TEXT[] NOT NULL DEFAULT '{}',
			code_id UUID NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);`,

		`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_refresh ON oauth_tokens (refresh_token);`,
		`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_user ON oauth_tokens (user_id);`,
	}

	for _, query := range queries {
		if _, err := p.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

func (p *Postgres) CreateClient(ctx context.Context, client *Client) error {
	query := `INSERT INTO oauth_clients (client_id, secret_hash, name, logo_url, redirect_uris, allowed_scopes, owner_id, active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id, created_at, updated_at`

	return p.db.QueryRowContext(ctx, query, client.ClientID, client.SecretHash, client.Name,
		client.LogoURL, pq.Array(client.RedirectURIs), pq.Array(client.AllowedScopes),
		client.OwnerID, client.Active).Scan(&client.ID, &client.CreatedAt, &client.UpdatedAt)
}

func (p *Postgres) GetClient(ctx context.Context, clientID string) (*Client, error) {
	client := &Client{}
	query := `SELECT id, client_id, secret_hash, name, logo_url, redirect_uris, allowed_scopes, owner_id, active, created_at, updated_at
			  FROM oauth_clients WHERE client_id = $1`

	var redirectURIs, allowedScopes pq.StringArray
	err := p.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID, &client.ClientID, &client.SecretHash, &client.Name, &client.LogoURL,
		&redirectURIs, &allowedScopes, &client.OwnerID, &client.Active,
		&client.CreatedAt, &client.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	client.RedirectURIs = []string(redirectURIs)
	client.AllowedScopes = []string(allowedScopes)
	return client, nil
}

func (p *Postgres) ListClientsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Client, error) {
	query := `SELECT id, client_id, secret_hash, name, logo_url, redirect_uris, allowed_scopes, owner_id, active, created_at, updated_at
			  FROM oauth_clients WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client := &Client{}
		var redirectURIs, allowedScopes pq.StringArray

		if err := rows.Scan(
			&client.ID, &client.ClientID, &client.SecretHash, &client.Name, &client.LogoURL,
			&redirectURIs, &allowedScopes, &client.OwnerID, &client.Active,
			&client.CreatedAt, &client.UpdatedAt); err != nil {
			return nil, err
		}

		client.RedirectURIs = []string(redirectURIs)
		client.AllowedScopes = []string(allowedScopes)
		clients = append(clients, client)
	}

	return clients, rows.Err()
}

func (p *Postgres) DeactivateClient(ctx context.Context, clientID string, ownerID uuid.UUID) error {
	query := `UPDATE oauth_clients SET active = FALSE, updated_at = NOW()
			  WHERE client_id = $1 AND owner_id = $2`

	result, err := p.db.ExecContext(ctx, query, clientID, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	query := `INSERT INTO oauth_codes (code, user_id, client_id, scopes, redirect_uri, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, created_at`

	return p.db.QueryRowContext(ctx, query, code.Code, code.UserID, code.ClientID,
		pq.Array(code.Scopes), code.RedirectURI, code.ExpiresAt).Scan(&code.ID, &code.CreatedAt)
}

func (p *Postgres) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	authCode := &AuthorizationCode{}
	query := `SELECT id, code, user_id, client_id, scopes, redirect_uri, expires_at, used, created_at
			  FROM oauth_codes WHERE code = $1`

	var scopes pq.StringArray
	err := p.db.QueryRowContext(ctx, query, code).Scan(
		&authCode.ID, &authCode.Code, &authCode.UserID, &authCode.ClientID,
		&scopes, &authCode.RedirectURI, &authCode.ExpiresAt, &authCode.Used,
		&authCode.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	authCode.Scopes = []string(scopes)
	return authCode, nil
}

// ConsumeAuthorizationCode flips used from false to true as one conditional
// update, so concurrent redemptions of the same code serialize in the
// database and only the winner sees true.
func (p *Postgres) ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error) {
	query := `UPDATE oauth_codes SET used = TRUE WHERE code = $1 AND NOT used`

	result, err := p.db.ExecContext(ctx, query, code)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (p *Postgres) CreateToken(ctx context.Context, token *Token) error {
	query := `INSERT INTO oauth_tokens (access_token, refresh_token, user_id, client_id, scopes, code_id, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id, created_at`

	return p.db.QueryRowContext(ctx, query, token.AccessToken, token.RefreshToken,
		token.UserID, token.ClientID, pq.Array(token.Scopes), token.CodeID,
		token.ExpiresAt).Scan(&token.ID, &token.CreatedAt)
}

func (p *Postgres) GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error) {
	query := `SELECT id, access_token, refresh_token, user_id, client_id, scopes, code_id, expires_at, revoked, created_at
			  FROM oauth_tokens WHERE access_token = $1`
	return p.scanToken(p.db.QueryRowContext(ctx, query, accessToken))
}

func (p *Postgres) GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	query := `SELECT id, access_token, refresh_token, user_id, client_id, scopes, code_id, expires_at, revoked, created_at
			  FROM oauth_tokens WHERE refresh_token = $1 AND NOT revoked
			  ORDER BY created_at DESC LIMIT 1`
	return p.scanToken(p.db.QueryRowContext(ctx, query, refreshToken))
}

func (p *Postgres) scanToken(row *sql.Row) (*Token, error) {
	token := &Token{}
	var scopes pq.StringArray
	err := row.Scan(
		&token.ID, &token.AccessToken, &token.RefreshToken, &token.UserID,
		&token.ClientID, &scopes, &token.CodeID, &token.ExpiresAt,
		&token.Revoked, &token.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	token.Scopes = []string(scopes)
	return token, nil
}

func (p *Postgres) ListTokensByUser(ctx context.Context, userID uuid.UUID) ([]*Token, error) {
	query := `SELECT id, access_token, refresh_token, user_id, client_id, scopes, code_id, expires_at, revoked, created_at
			  FROM oauth_tokens WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token := &Token{}
		var scopes pq.StringArray

		if err := rows.Scan(
			&token.ID, &token.AccessToken, &token.RefreshToken, &token.UserID,
			&token.ClientID, &scopes, &token.CodeID, &token.ExpiresAt,
			&token.Revoked, &token.CreatedAt); err != nil {
			return nil, err
		}

		token.Scopes = []string(scopes)
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

func (p *Postgres) RevokeToken(ctx context.Context, accessToken string) error {
	query := `UPDATE oauth_tokens SET revoked = TRUE WHERE access_token = $1`
	_, err := p.db.ExecContext(ctx, query, accessToken)
	return err
}

func (p *Postgres) RevokeTokensForCode(ctx context.Context, codeID uuid.UUID) error {
	query := `UPDATE oauth_tokens SET revoked = TRUE WHERE code_id = $1`
	_, err := p.db.ExecContext(ctx, query, codeID)
	return err
}

func (p *Postgres) RevokeTokensForUserClient(ctx context.Context, userID uuid.UUID, clientID string) (int, error) {
	query := `UPDATE oauth_tokens SET revoked = TRUE
			  WHERE user_id = $1 AND client_id = $2 AND NOT revoked`

	result, err := p.db.ExecContext(ctx, query, userID, clientID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (p *Postgres) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM oauth_codes WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (p *Postgres) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE expires_at < NOW() AND revoked`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
