package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

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
	query := `CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		display_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		password_hash VARCHAR(255) NOT NULL,
		symbolic_name VARCHAR(255) NOT NULL,
		photo_url VARCHAR(512) NOT NULL DEFAULT '',
		token_balance BIGINT NOT NULL DEFAULT 0,
		reputation VARCHAR(64) NOT NULL DEFAULT 'chrome',
		breadcrumb_score BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);`

	if _, err := p.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (display_name, email, email_verified, password_hash, symbolic_name, photo_url, token_balance, reputation, breadcrumb_score)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id, created_at`

	err := p.db.QueryRowContext(ctx, query, user.DisplayName, user.Email, user.EmailVerified,
		user.PasswordHash, user.SymbolicName, user.PhotoURL, user.TokenBalance,
		user.Reputation, user.BreadcrumbScore).Scan(&user.ID, &user.CreatedAt)

	if err != nil && isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return p.getUser(ctx, `WHERE id = $1`, id)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.getUser(ctx, `WHERE email = $1`, email)
}

func (p *Postgres) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	user := &User{}
	query := `SELECT id, display_name, email, email_verified, password_hash, symbolic_name, photo_url, token_balance, reputation, breadcrumb_score, created_at
			  FROM users ` + where

	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.EmailVerified,
		&user.PasswordHash, &user.SymbolicName, &user.PhotoURL, &user.TokenBalance,
		&user.Reputation, &user.BreadcrumbScore, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *Postgres) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := p.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
