package otp

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryStore builds an in-memory challenge store for tests and local development.
func NewMemoryStore() Store {
	return &memoryStore{challenges: make(map[string]Challenge)}
}

func (s *memoryStore) Put(_ context.Context, key string, ch Challenge, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.challenges[key]; ok && cooldown > 0 && ch.IssuedAt.Sub(prev.IssuedAt) < cooldown {
		return ErrRateLimited
	}
	s.challenges[key] = ch
	return nil
}

func (s *memoryStore) Check(_ context.Context, key, digest, bypass string, now time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[key]
	switch {
	case !ok:
		return ErrNotFound
	case ch.Verified:
		return ErrAlreadyUsed
	case now.After(ch.ExpiresAt):
		return ErrExpired
	case ch.Attempts >= maxAttempts:
		return ErrAttemptsExhausted
	}
	if ch.Code != digest && (bypass == "" || bypass != digest) {
		ch.Attempts++
		s.challenges[key] = ch
		return ErrMismatch
	}
	ch.Verified = true
	s.challenges[key] = ch
	return nil
}
