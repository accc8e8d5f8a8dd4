package challenge

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"

	"github.com/MrEthical07/twostep/delivery"
)

// Channel is the medium a code travels over.
type Channel uint8

const (
	ChannelEmail Channel = iota + 1
	ChannelSMS
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// Record is a stored code. Only the SHA-256 of the code is kept.
type Record struct {
	Channel   Channel
	Purpose   delivery.Purpose
	Digest    [32]byte
	ExpiresAt time.Time
}

// PendingLogin is a login that passed the credential check and waits for its
// second factor.
type PendingLogin struct {
	ID        string
	Subject   string
	Method    string
	ExpiresAt time.Time
}

// Store persists challenges and pending logins.
//
// Put overwrites any record under key. Consume checks and deletes in one
// atomic step: it returns nil only for a live record whose purpose and
// digest match, and then the record is gone. A mismatch leaves the record in
// place; an expired record is removed.
//
// DeletePending reports whether this call removed the entry, so concurrent
// completions of one login agree on a single winner.
type Store interface {
	Put(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Consume(ctx context.Context, key string, purpose delivery.Purpose, digest [32]byte, now time.Time) error

	PutPending(ctx context.Context, p PendingLogin, ttl time.Duration) error
	Pending(ctx context.Context, id string, now time.Time) (*PendingLogin, error)
	DeletePending(ctx context.Context, id string) (bool, error)
}

func recordKey(subject string, ch Channel) string {
	return ch.String() + ":" + strings.ToLower(subject)
}

func digestCode(code string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(code)))
}
