// Package auth keeps the session's bearer token. The in-memory copy is the
// one read on every request; the backend makes it survive a restart.
package auth

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Backend persists a single token.
type Backend interface {
	// Load returns the stored token, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	Store(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// TokenStore holds the current bearer token.
type TokenStore struct {
	backend Backend
	log     *log.Logger

	mu    sync.RWMutex
	token string
}

// NewTokenStore creates a store primed with whatever the backend holds.
func NewTokenStore(ctx context.Context, backend Backend, logger *log.Logger) (*TokenStore, error) {
	if backend == nil {
		backend = &MemoryBackend{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	token, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &TokenStore{backend: backend, log: logger, token: token}, nil
}

// Save persists token and makes it current.
func (s *TokenStore) Save(ctx context.Context, token string) error {
	if err := s.backend.Store(ctx, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.log.Debug("bearer token saved")
	return nil
}

// Current returns the latest known token or "".
func (s *TokenStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear forgets the token. The in-memory copy is dropped even when the
// backend fails so no further request carries it.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	s.log.Debug("bearer token cleared")
	return nil
}

// MemoryBackend keeps the token for the lifetime of the process only.
type MemoryBackend struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryBackend) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryBackend) Store(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
