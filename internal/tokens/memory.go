package tokens

import (
	"context"
	"sync"
	"time"
)

// MemoryRevoker keeps the denylist in process memory. Used in tests and in
// redis-less single-instance deployments.
type MemoryRevoker struct {
	mu sync.RWMutex
	m  map[string]time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{
		m: make(map[string]time.Time),
	}
}

func (r *MemoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	r.m[jti] = time.Now().Add(ttl)
	r.mu.Unlock()

	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	now := time.Now()

	r.mu.RLock()
	exp, ok := r.m[jti]
	r.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if now.After(exp) {
		r.mu.Lock()
		delete(r.m, jti)
		r.mu.Unlock()

		return false, nil
	}

	return true, nil
}
