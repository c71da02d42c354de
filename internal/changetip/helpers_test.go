package changetip

import (
	"context"
	"sync"

	"github.com/florianilch/changekit/internal/tokenstore"
)

// memoryStore is an in-memory TokenStore that counts writes.
type memoryStore struct {
	mu     sync.Mutex
	creds  *tokenstore.Credentials
	writes int
}

var _ tokenstore.TokenStore = (*memoryStore)(nil)

func newMemoryStore(access, refresh string) *memoryStore {
	if access == "" {
		return &memoryStore{}
	}
	return &memoryStore{creds: &tokenstore.Credentials{AccessToken: access, RefreshToken: refresh}}
}

func (m *memoryStore) Read(context.Context) (tokenstore.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return tokenstore.Credentials{}, tokenstore.ErrNotFound
	}
	return *m.creds, nil
}

func (m *memoryStore) Write(_ context.Context, creds tokenstore.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.creds = &creds
	return nil
}

func (m *memoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.creds = nil
	return nil
}
