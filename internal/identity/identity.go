package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// DefaultReputation is the starting reputation tier for every account.
const DefaultReputation = "chrome"

// User is a CredNet Social account as seen by the authorization server.
type User struct {
	ID              uuid.UUID `json:"id" db:"id"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Email           string    `json:"email" db:"email"`
	EmailVerified   bool      `json:"email_verified" db:"email_verified"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	SymbolicName    string    `json:"symbolic_name" db:"symbolic_name"`
	PhotoURL        string    `json:"photo_url,omitempty" db:"photo_url"`
	TokenBalance    int64     `json:"token_balance" db:"token_balance"`
	Reputation      string    `json:"reputation" db:"reputation"`
	BreadcrumbScore int64     `json:"breadcrumb_score" db:"breadcrumb_score"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Store is the external identity collaborator: user records with the
// profile, email, balance and reputation fields the userinfo projection
// draws from. Authenticate backs the first-party login and the
// authorize-page credential check.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)

	Ping(ctx context.Context) error
	Close() error
}

var symbolicNameRe = regexp.MustCompile(`§\(([^)]+)\)`)

// FormatSymbolicName wraps a display name in the §(name) convention used
// across CredNet Social. Names already carrying the marker pass through.
func FormatSymbolicName(name string) string {
	if name == "" {
		return "§(Anonymous)"
	}
	if strings.HasPrefix(name, "§") {
		return name
	}
	return "§(" + name + ")"
}

// ParseSymbolicName extracts the plain name from its §(name) form.
func ParseSymbolicName(symbolicName string) string {
	if symbolicName == "" {
		return "Anonymous"
	}
	if match := symbolicNameRe.FindStringSubmatch(symbolicName); match != nil {
		return match[1]
	}
	return symbolicName
}
