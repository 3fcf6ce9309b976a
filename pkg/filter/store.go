package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists filter state per page so a list reopens with the last selection.
// Load returns (nil, nil) when nothing was saved for pageKey.
type Store interface {
	Load(ctx context.Context, pageKey string) (*State, error)
	Save(ctx context.Context, pageKey string, state State) error
}

// MemoryStore keeps states in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, pageKey string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[pageKey]
	if !ok {
		return nil, nil
	}
	cp := state.Clone()
	return &cp, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, pageKey string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[pageKey] = state.Clone()
	return nil
}

// RedisStore keeps states in Redis under prefix+pageKey with a sliding TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore. A zero ttl keeps keys forever.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Scoped returns a store whose keys are nested under scope, typically a user id.
func (r *RedisStore) Scoped(scope string) *RedisStore {
	return &RedisStore{client: r.client, prefix: r.prefix + scope + ":", ttl: r.ttl}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, pageKey string) (*State, error) {
	if r.client == nil {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, r.prefix+pageKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load filter state %s: %w", pageKey, err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode filter state %s: %w", pageKey, err)
	}
	if state.Categorical == nil {
		state.Categorical = map[string]string{}
	}
	return &state, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, pageKey string, state State) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode filter state %s: %w", pageKey, err)
	}
	if err := r.client.Set(ctx, r.prefix+pageKey, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save filter state %s: %w", pageKey, err)
	}
	return nil
}
