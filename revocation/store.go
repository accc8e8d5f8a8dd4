package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrEmptyToken is returned by Revoke for an empty token.
	ErrEmptyToken = errors.New("revocation: empty token")
	// ErrNilStore is returned when a sweeper is built without a store.
	ErrNilStore = errors.New("revocation: nil store")

	errInvalidSchedule = errors.New("revocation: sweep interval and retention must be > 0")
)

// Store tracks explicitly invalidated tokens until they are purged.
//
// Implementations must be safe for concurrent Revoke, IsRevoked and
// PurgeOlderThan calls without external locking.
type Store interface {
	Revoke(ctx context.Context, token string) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

// Digest is the key stores use in place of the raw bearer string.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
