package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps refresh tokens in process. Used when no Redis is configured.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, jti string, _ int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, k)
		}
	}
	s.tokens[jti] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[jti]
	if !ok {
		return false, nil
	}
	delete(s.tokens, jti)
	return !s.now().After(exp), nil
}

func (s *MemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	delete(s.tokens, jti)
	s.mu.Unlock()
	return nil
}
