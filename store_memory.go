package magiclink

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements TokenStore and RateLimitStore as process-local
// fallback state for degraded operation. It does not survive restarts and is
// not shared across instances; callers stay agnostic because it sits behind
// the same interfaces as the durable backend.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*MagicToken
	limits map[string]*RateLimitEntry
}

var (
	_ TokenStore     = (*MemoryStore)(nil)
	_ RateLimitStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: map[string]*MagicToken{},
		limits: map[string]*RateLimitEntry{},
	}
}

var (
	fallbackOnce  sync.Once
	fallbackStore *MemoryStore
)

// FallbackStore returns the shared process-local store used for degraded
// mode. Both the token store and the rate limiter share it, so throttling
// stays enforced even without the durable backend.
func FallbackStore() *MemoryStore {
	fallbackOnce.Do(func() {
		fallbackStore = NewMemoryStore()
	})
	return fallbackStore
}

// SaveToken stores a token record keyed by digest.
func (s *MemoryStore) SaveToken(_ context.Context, token *MagicToken) error {
	if token == nil || token.TokenDigest == "" {
		return ErrStoreUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt == nil {
		now := time.Now()
		token.CreatedAt = &now
	}
	s.tokens[token.TokenDigest] = token.clone()
	return nil
}

// GetToken returns a copy of the stored token or ErrTokenNotFound.
func (s *MemoryStore) GetToken(_ context.Context, digest string) (*MagicToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[digest]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token.clone(), nil
}

// ConsumeToken flips the token to used under the store mutex. Exactly one
// concurrent caller wins; the rest observe ErrTokenUsed.
func (s *MemoryStore) ConsumeToken(_ context.Context, digest string, now time.Time) (*MagicToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[digest]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if token.Used {
		return nil, ErrTokenUsed
	}
	if token.Expired(now) {
		return nil, ErrTokenExpired
	}

	token.Used = true
	usedAt := now
	token.UsedAt = &usedAt
	return token.clone(), nil
}

// DeleteToken removes the token if present.
func (s *MemoryStore) DeleteToken(_ context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, digest)
	return nil
}

// PurgeExpired removes every token past its expiry and reports how many.
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for digest, token := range s.tokens {
		if token.Expired(now) {
			delete(s.tokens, digest)
			purged++
		}
	}
	return purged, nil
}

// Hit creates, rolls, or increments the device counter atomically.
func (s *MemoryStore) Hit(_ context.Context, deviceID string, now time.Time, window time.Duration) (*RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.limits[deviceID]
	if !ok || entry.WindowExpired(now, window) {
		entry = &RateLimitEntry{
			DeviceID:    deviceID,
			WindowStart: now,
			Count:       1,
		}
		s.limits[deviceID] = entry
	} else {
		entry.Count++
	}

	cp := *entry
	return &cp, nil
}

// Reset clears all state. Intended for tests and process-local resets.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = map[string]*MagicToken{}
	s.limits = map[string]*RateLimitEntry{}
}
