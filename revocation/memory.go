package revocation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// MemoryStore is a process-local Store. Entries are spread over fixed shards
// so that a purge only ever holds one shard lock at a time.
//
// Entries do not survive a restart: a token revoked just before the process
// exits is accepted again until its own expiry.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]time.Time)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Revoke records token as revoked now. Revoking twice refreshes the timestamp.
func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	key := Digest(token)
	sh := s.shardFor(key)

	sh.mu.Lock()
	sh.entries[key] = s.now()
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	key := Digest(token)
	sh := s.shardFor(key)

	sh.mu.RLock()
	_, ok := sh.entries[key]
	sh.mu.RUnlock()
	return ok, nil
}

// PurgeOlderThan removes entries revoked strictly before now-retention.
func (s *MemoryStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	removed := 0

	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for key, revokedAt := range sh.entries {
			if revokedAt.Before(cutoff) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

// Len reports the number of tracked entries.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
