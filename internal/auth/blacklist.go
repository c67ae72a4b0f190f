package auth

import (
	"context"
	"sync"
	"time"
)

// TokenBlacklist is the access-token revocation set: tokens listed here
// are rejected before their natural expiry (immediate logout). Entries
// only need to live as long as the token itself, so every Add carries
// the token's remaining lifetime as TTL.
//
// The store is injected, never a package-level singleton: under
// horizontal scaling it must be shared between instances (use the Redis
// implementation), 单实例部署可以用内存实现。
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// MemoryBlacklist is the in-process fallback implementation. Entries are
// lost on restart, which is bounded by the short access-token lifetime.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token -> 过期时间
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Add(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// 令牌已自然过期，无需入黑名单
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = time.Now().Add(ttl)
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	exp, ok := b.entries[token]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		// 顺手清理过期条目
		b.mu.Lock()
		delete(b.entries, token)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}
