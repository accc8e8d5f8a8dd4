package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/twostep/delivery"
)

var (
	// ErrChallengeNotFound means no live challenge or secret exists.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired means the challenge existed but its TTL elapsed.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrCodeMismatch means the submitted code is wrong.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrDelivery wraps failures of the email or SMS sender.
	ErrDelivery = errors.New("code delivery failed")
	// ErrNoSender is returned when a channel has no sender configured.
	ErrNoSender = errors.New("no sender configured for channel")
)

// Config sets code length and the two TTL classes.
type Config struct {
	CodeDigits      int
	VerificationTTL time.Duration
	LoginTTL        time.Duration
	TOTP            TOTPConfig
}

func DefaultConfig() Config {
	return Config{
		CodeDigits:      6,
		VerificationTTL: 10 * time.Minute,
		LoginTTL:        5 * time.Minute,
		TOTP:            DefaultTOTPConfig(),
	}
}

// Subject is the part of an account the challenge manager needs.
type Subject struct {
	Email      string
	Phone      string
	TOTPSecret string
}

// Manager issues, stores and verifies one-time codes and owns TOTP secret
// provisioning.
type Manager struct {
	cfg   Config
	store Store
	email delivery.EmailSender
	sms   delivery.SMSSender
	totp  *totp
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(cfg Config, store Store, email delivery.EmailSender, sms delivery.SMSSender, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("challenge: nil store")
	}
	if cfg.VerificationTTL <= 0 || cfg.LoginTTL <= 0 {
		return nil, errors.New("challenge: TTLs must be > 0")
	}
	if _, err := newCode(cfg.CodeDigits); err != nil {
		return nil, err
	}
	if err := cfg.TOTP.validate(); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}

	m := &Manager{
		cfg:   cfg,
		store: store,
		email: email,
		sms:   sms,
		totp:  &totp{config: cfg.TOTP},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lifetime of a code issued for purpose.
func (m *Manager) TTL(purpose delivery.Purpose) time.Duration {
	if purpose == delivery.PurposeLogin {
		return m.cfg.LoginTTL
	}
	return m.cfg.VerificationTTL
}

// IssueEmailCode replaces any outstanding email code for s and mails a new one.
func (m *Manager) IssueEmailCode(ctx context.Context, s Subject, purpose delivery.Purpose) error {
	if m.email == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, ChannelEmail)
	}
	return m.issue(ctx, s.Email, ChannelEmail, purpose, func(code string) error {
		return m.email.Deliver(ctx, s.Email, code, purpose)
	})
}

// IssueSMSCode replaces any outstanding SMS code for s and texts a new one.
func (m *Manager) IssueSMSCode(ctx context.Context, s Subject, purpose delivery.Purpose) error {
	if m.sms == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, ChannelSMS)
	}
	if s.Phone == "" {
		return fmt.Errorf("%w: %w", ErrDelivery, delivery.ErrNoRecipient)
	}
	return m.issue(ctx, s.Email, ChannelSMS, purpose, func(code string) error {
		return m.sms.Deliver(ctx, s.Phone, code, purpose)
	})
}

func (m *Manager) issue(ctx context.Context, subject string, ch Channel, purpose delivery.Purpose, send func(string) error) error {
	code, err := newCode(m.cfg.CodeDigits)
	if err != nil {
		return err
	}

	ttl := m.TTL(purpose)
	rec := Record{
		Channel:   ch,
		Purpose:   purpose,
		Digest:    digestCode(code),
		ExpiresAt: m.now().Add(ttl),
	}
	if err := m.store.Put(ctx, recordKey(subject, ch), rec, ttl); err != nil {
		return err
	}

	if err := send(code); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// VerifyCode consumes the outstanding code for (s, ch). It returns nil exactly
// once per issued code.
func (m *Manager) VerifyCode(ctx context.Context, s Subject, ch Channel, purpose delivery.Purpose, code string) error {
	return m.store.Consume(ctx, recordKey(s.Email, ch), purpose, digestCode(code), m.now())
}

// SetupAuthenticatorApp generates a new secret. The caller stores it as
// unconfirmed; nothing is enabled until VerifyTOTP succeeds.
func (m *Manager) SetupAuthenticatorApp(s Subject) (*Provisioning, error) {
	secret, err := m.totp.generateSecret()
	if err != nil {
		return nil, fmt.Errorf("challenge: generate totp secret: %w", err)
	}
	return &Provisioning{Secret: secret, URI: m.totp.provisioningURI(secret, s.Email)}, nil
}

// Provisioning rebuilds the payload for an already stored secret.
func (m *Manager) Provisioning(s Subject) (*Provisioning, error) {
	if s.TOTPSecret == "" {
		return nil, ErrChallengeNotFound
	}
	return &Provisioning{Secret: s.TOTPSecret, URI: m.totp.provisioningURI(s.TOTPSecret, s.Email)}, nil
}

// VerifyTOTP checks code against secret for the current step and the
// configured skew around it. TOTP keeps no per-use state.
func (m *Manager) VerifyTOTP(secret, code string) error {
	if secret == "" {
		return ErrChallengeNotFound
	}
	ok, err := m.totp.verify(secret, code, m.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeMismatch, err)
	}
	if !ok {
		return ErrCodeMismatch
	}
	return nil
}

// BeginLogin records a pending login for subject that expires after the
// login TTL.
func (m *Manager) BeginLogin(ctx context.Context, subject, method string) (*PendingLogin, error) {
	ttl := m.cfg.LoginTTL
	p := PendingLogin{
		ID:        uuid.NewString(),
		Subject:   subject,
		Method:    method,
		ExpiresAt: m.now().Add(ttl),
	}
	if err := m.store.PutPending(ctx, p, ttl); err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingLogin loads a live pending login.
func (m *Manager) PendingLogin(ctx context.Context, id string) (*PendingLogin, error) {
	if id == "" {
		return nil, ErrChallengeNotFound
	}
	return m.store.Pending(ctx, id, m.now())
}

// CompleteLogin consumes a pending login. Only one caller ever gets true.
func (m *Manager) CompleteLogin(ctx context.Context, id string) (bool, error) {
	return m.store.DeletePending(ctx, id)
}
