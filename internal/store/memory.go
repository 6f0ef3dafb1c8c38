package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store for tests and local development. All state
// is lost on restart; production deployments use Postgres.
type Memory struct {
	mu      sync.Mutex
	clients map[string]*Client
	codes   map[string]*AuthorizationCode
	tokens  map[string]*Token
}

func NewMemory() *Memory {
	return &Memory{
		clients: make(map[string]*Client),
		codes:   make(map[string]*AuthorizationCode),
		tokens:  make(map[string]*Token),
	}
}

func (m *Memory) CreateClient(ctx context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client.ID = uuid.New()
	client.CreatedAt = time.Now()
	client.UpdatedAt = client.CreatedAt
	m.clients[client.ClientID] = client
	return nil
}

func (m *Memory) GetClient(ctx context.Context, clientID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (m *Memory) ListClientsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var clients []*Client
	for _, client := range m.clients {
		if client.OwnerID == ownerID {
			cp := *client
			clients = append(clients, &cp)
		}
	}
	return clients, nil
}

func (m *Memory) DeactivateClient(ctx context.Context, clientID string, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok || client.OwnerID != ownerID {
		return ErrNotFound
	}
	client.Active = false
	client.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code.ID = uuid.New()
	code.CreatedAt = time.Now()
	m.codes[code.Code] = code
	return nil
}

func (m *Memory) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	authCode, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *authCode
	return &cp, nil
}

// ConsumeAuthorizationCode performs the used-flag compare-and-swap under
// the store mutex: exactly one concurrent caller gets true.
func (m *Memory) ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	authCode, ok := m.codes[code]
	if !ok || authCode.Used {
		return false, nil
	}
	authCode.Used = true
	return true, nil
}

func (m *Memory) CreateToken(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token.ID = uuid.New()
	token.CreatedAt = time.Now()
	m.tokens[token.AccessToken] = token
	return nil
}

func (m *Memory) GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[accessToken]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (m *Memory) GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newest *Token
	for _, token := range m.tokens {
		if token.RefreshToken != refreshToken || token.Revoked {
			continue
		}
		if newest == nil || token.CreatedAt.After(newest.CreatedAt) {
			newest = token
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *Memory) ListTokensByUser(ctx context.Context, userID uuid.UUID) ([]*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tokens []*Token
	for _, token := range m.tokens {
		if token.UserID == userID {
			cp := *token
			tokens = append(tokens, &cp)
		}
	}
	return tokens, nil
}

func (m *Memory) RevokeToken(ctx context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.tokens[accessToken]; ok {
		token.Revoked = true
	}
	return nil
}

func (m *Memory) RevokeTokensForCode(ctx context.Context, codeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.CodeID == codeID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *Memory) RevokeTokensForUserClient(ctx context.Context, userID uuid.UUID, clientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	for _, token := range m.tokens {
		if token.UserID == userID && token.ClientID == clientID && !token.Revoked {
			token.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func (m *Memory) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	now := time.Now()
	for code, authCode := range m.codes {
		if authCode.ExpiresAt.Before(now) {
			delete(m.codes, code)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	now := time.Now()
	for accessToken, token := range m.tokens {
		if token.Revoked && token.ExpiresAt.Before(now) {
			delete(m.tokens, accessToken)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
