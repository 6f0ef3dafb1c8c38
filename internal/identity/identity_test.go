package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func newTestUser(t *testing.T, email, password string) *User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	return &User{
		ID:           uuid.New(),
		DisplayName:  "Margaret",
		Email:        email,
		PasswordHash: string(hash),
		SymbolicName: FormatSymbolicName("Margaret"),
		Reputation:   DefaultReputation,
	}
}

func TestFormatSymbolicName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "Margaret", "§(Margaret)"},
		{"already formatted", "§(Margaret)", "§(Margaret)"},
		{"empty name", "", "§(Anonymous)"},
		{"name with spaces", "Margaret H", "§(Margaret H)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSymbolicName(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseSymbolicName(t *testing.T) {
	if got := ParseSymbolicName("§(Margaret)"); got != "Margaret" {
		t.Errorf("Expected 'Margaret', got %q", got)
	}

	// A string without the marker comes back unchanged.
	if got := ParseSymbolicName("Margaret"); got != "Margaret" {
		t.Errorf("Expected 'Margaret', got %q", got)
	}
}

func TestMemoryCreateAndGetUser(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	user := newTestUser(t, "margaret@example.com", "hunter2hunter2")
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.Email != "margaret@example.com" {
		t.Errorf("Expected email to round-trip, got %q", got.Email)
	}
}

func TestMemoryDuplicateEmail(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateUser(ctx, newTestUser(t, "taken@example.com", "password1")); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	err := store.CreateUser(ctx, newTestUser(t, "Taken@Example.com", "password2"))
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken for duplicate email, got %v", err)
	}
}

func TestMemoryAuthenticate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	user := newTestUser(t, "margaret@example.com", "correct-password")
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	got, err := store.Authenticate(ctx, "margaret@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Expected authentication to succeed: %v", err)
	}
	if got.ID != user.ID {
		t.Error("Authenticated user should match created user")
	}

	if _, err := store.Authenticate(ctx, "margaret@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}

	if _, err := store.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestMemoryGetUserByEmailCaseInsensitive(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	user := newTestUser(t, "margaret@example.com", "password123")
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "MARGARET@example.com")
	if err != nil {
		t.Fatalf("Expected case-insensitive lookup to succeed: %v", err)
	}
	if got.ID != user.ID {
		t.Error("Looked-up user should match created user")
	}
}

func TestMemoryGetUserNotFound(t *testing.T) {
	store := NewMemory()

	if _, err := store.GetUser(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
