package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLRUSize bounds the in-process cache when no size is configured.
const DefaultLRUSize = 512

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// LRUProvider is an in-process Provider with per-entry TTLs. Expired entries are dropped lazily.
type LRUProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	now   func() time.Time
}

// NewLRUProvider returns an LRU-backed Provider holding at most size entries.
func NewLRUProvider(size int) (*LRUProvider, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUProvider{cache: c, now: time.Now}, nil
}

// Get returns a copy of the cached bytes or ErrCacheMiss.
func (p *LRUProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.expired(p.now()) {
		p.cache.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value. A non-positive TTL never expires.
func (p *LRUProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(key, p.entry(value, ttl))
	return nil
}

// Del removes a key.
func (p *LRUProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key)
	return nil
}

// Close purges all entries.
func (p *LRUProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return nil
}

func (p *LRUProvider) entry(value []byte, ttl time.Duration) lruEntry {
	entry := lruEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = p.now().Add(ttl)
	}
	return entry
}
