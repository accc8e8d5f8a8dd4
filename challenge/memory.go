package challenge

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/twostep/delivery"
)

// MemoryStore keeps challenges in process memory. Expired entries are
// dropped when they are next touched or by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	pending map[string]PendingLogin
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		pending: make(map[string]PendingLogin),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, rec Record, _ time.Duration) error {
	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key string, purpose delivery.Purpose, digest [32]byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrChallengeNotFound
	}
	if !now.Before(rec.ExpiresAt) {
		delete(s.records, key)
		return ErrChallengeExpired
	}

	match := subtle.ConstantTimeCompare(rec.Digest[:], digest[:]) == 1
	if !match || rec.Purpose != purpose {
		return ErrCodeMismatch
	}

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) PutPending(_ context.Context, p PendingLogin, _ time.Duration) error {
	s.mu.Lock()
	s.pending[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, id string, now time.Time) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	if !now.Before(p.ExpiresAt) {
		delete(s.pending, id)
		return nil, ErrChallengeExpired
	}
	return &p, nil
}

func (s *MemoryStore) DeletePending(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return false, nil
	}
	delete(s.pending, id)
	return true, nil
}

// Sweep drops every entry that expired before now and returns how many were
// removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, k)
			n++
		}
	}
	for id, p := range s.pending {
		if !now.Before(p.ExpiresAt) {
			delete(s.pending, id)
			n++
		}
	}
	return n
}
