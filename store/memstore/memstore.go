// Package memstore is an in-memory twostep.AccountStore for tests, demos and
// single-process deployments. Nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/twostep"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[string]twostep.Account
}

func New() *Store {
	return &Store{accounts: make(map[string]twostep.Account)}
}

func key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// FindByIdentifier returns a copy of the stored account.
func (s *Store) FindByIdentifier(_ context.Context, identifier string) (*twostep.Account, error) {
	s.mu.RLock()
	acct, ok := s.accounts[key(identifier)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memstore: %q: %w", identifier, twostep.ErrAccountNotFound)
	}
	return clone(acct), nil
}

// Save inserts or replaces the account keyed by its email. A second account
// created under an existing email is rejected with twostep.ErrAccountExists.
func (s *Store) Save(_ context.Context, acct *twostep.Account) (*twostep.Account, error) {
	if acct == nil || strings.TrimSpace(acct.Email) == "" {
		return nil, fmt.Errorf("memstore: account email is empty")
	}
	k := key(acct.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[k]; ok && !existing.CreatedAt.Equal(acct.CreatedAt) {
		return nil, twostep.ErrAccountExists
	}
	stored := *clone(*acct)
	stored.Email = k
	s.accounts[k] = stored
	return clone(stored), nil
}

func (s *Store) ExistsByIdentifier(_ context.Context, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[key(identifier)]
	return ok, nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func clone(a twostep.Account) *twostep.Account {
	if a.LastLoginAt != nil {
		at := *a.LastLoginAt
		a.LastLoginAt = &at
	}
	return &a
}
