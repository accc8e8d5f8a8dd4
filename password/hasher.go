package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrMalformedHash is returned for stored hashes that cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned for hash formats the hasher does not know.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Hasher produces argon2id hashes and verifies both argon2id and legacy
// bcrypt hashes. Accounts imported from bcrypt-based systems keep working and
// are reported by NeedsUpgrade so callers can re-hash after a successful login.
type Hasher struct {
	argon *Argon2
}

// NewHasher returns a Hasher whose new hashes use cfg.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a}, nil
}

// Hash always produces argon2id.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify dispatches on the hash prefix.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return h.argon.Verify(password, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, errors.Join(ErrMalformedHash, err)
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade is true for every bcrypt hash and for argon2id hashes with
// weaker parameters than the configured ones.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	return h.argon.NeedsUpgrade(encoded)
}

func isBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}
