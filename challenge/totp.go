package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPConfig follows RFC 6238. Skew is the number of adjacent steps accepted
// on each side of the current one.
type TOTPConfig struct {
	Issuer    string
	Period    int
	Digits    int
	Skew      int
	Algorithm string
}

// DefaultTOTPConfig is what common authenticator apps expect.
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:    "twostep",
		Period:    30,
		Digits:    6,
		Skew:      1,
		Algorithm: "SHA1",
	}
}

func (c TOTPConfig) validate() error {
	if c.Issuer == "" {
		return errors.New("totp issuer must not be empty")
	}
	if c.Period <= 0 {
		return errors.New("totp period must be > 0")
	}
	if c.Digits < 6 || c.Digits > 8 {
		return errors.New("totp digits must be within [6, 8]")
	}
	if c.Skew < 0 || c.Skew > 3 {
		return errors.New("totp skew must be within [0, 3]")
	}
	if _, err := hmacFunc(c.Algorithm); err != nil {
		return err
	}
	return nil
}

// Provisioning is what a user scans into an authenticator app.
type Provisioning struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type totp struct {
	config TOTPConfig
}

func (t *totp) generateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

func (t *totp) provisioningURI(secret, account string) string {
	issuer := t.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(t.config.Period))
	v.Set("digits", strconv.Itoa(t.config.Digits))
	v.Set("algorithm", strings.ToUpper(t.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// verify compares code against every step in the skew window. It keeps
// looping after a match so the time taken does not depend on which step hit.
func (t *totp) verify(secret, code string, now time.Time) (bool, error) {
	key, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(key) == 0 {
		return false, errors.New("invalid totp secret")
	}

	code = strings.TrimSpace(code)
	if len(code) != t.config.Digits || !isDigits(code) {
		return false, nil
	}

	matched := 0
	base := now.Unix() / int64(t.config.Period)
	for step := -t.config.Skew; step <= t.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		expected, err := hotp(key, counter, t.config.Digits, t.config.Algorithm)
		if err != nil {
			return false, err
		}
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return matched == 1, nil
}

// GenerateTOTP returns the code for the time step containing at.
func GenerateTOTP(cfg TOTPConfig, secret string, at time.Time) (string, error) {
	if cfg.Period <= 0 {
		return "", errors.New("totp period must be > 0")
	}
	key, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("invalid totp secret: %w", err)
	}
	return hotp(key, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
}

func hotp(key []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		int(sum[offset+1])<<16 |
		int(sum[offset+2])<<8 |
		int(sum[offset+3])

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported totp algorithm %q", algorithm)
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
