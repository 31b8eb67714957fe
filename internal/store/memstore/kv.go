package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"

	"github.com/google/uuid"
)

type entry struct {
	value   []byte
	token   string
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// KV stands in for Redis: locks, cache entries, idempotency keys and sessions
type KV struct {
	mu       sync.Mutex
	items    map[string]entry
	sessions map[string]models.Principal
	now      func() time.Time
}

var (
	_ service.Locker           = (*KV)(nil)
	_ service.Cache            = (*KV)(nil)
	_ service.IdempotencyGuard = (*KV)(nil)
)

// NewKV creates an empty key-value store
func NewKV() *KV {
	return &KV{
		items:    make(map[string]entry),
		sessions: make(map[string]models.Principal),
		now:      time.Now,
	}
}

func (kv *KV) live(key string) (entry, bool) {
	e, ok := kv.items[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(kv.now()) {
		delete(kv.items, key)
		return entry{}, false
	}
	return e, true
}

func (kv *KV) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return kv.now().Add(ttl)
}

// AcquireLock takes the lock if free and returns the owner token
func (kv *KV) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, held := kv.live(key); held {
		return "", false, nil
	}
	token := uuid.New().String()
	kv.items[key] = entry{token: token, expires: kv.expiry(ttl)}
	return token, true, nil
}

// ReleaseLock drops the lock only if token still owns it
func (kv *KV) ReleaseLock(ctx context.Context, key, token string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if e, ok := kv.live(key); ok && e.token == token {
		delete(kv.items, key)
	}
	return nil
}

// ClaimIdempotencyKey returns false when the key was already claimed
func (kv *KV) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	k := "idempotency:" + key
	if _, exists := kv.live(k); exists {
		return false, nil
	}
	kv.items[k] = entry{value: []byte("1"), expires: kv.expiry(ttl)}
	return true, nil
}

// GetCache returns a cached value
func (kv *KV) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.live("cache:" + key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// SetCache stores a value with a TTL
func (kv *KV) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.items["cache:"+key] = entry{value: append([]byte(nil), value...), expires: kv.expiry(ttl)}
	return nil
}

// DeleteCache removes a cached value
func (kv *KV) DeleteCache(ctx context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.items, "cache:"+key)
	return nil
}

// PutSession registers a bearer token for a principal
func (kv *KV) PutSession(token string, p models.Principal) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.sessions[token] = p
}

// GetSession resolves a bearer token
func (kv *KV) GetSession(ctx context.Context, token string) (*models.Principal, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	p, ok := kv.sessions[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", models.ErrUnauthorized)
	}
	return &p, nil
}
