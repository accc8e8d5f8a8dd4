package challenge

import (
	"context"

	"github.com/MrEthical07/twostep/delivery"
)

// Strategy is one way of proving the second factor at login. Issue starts a
// challenge for the subject and Verify checks the answer. The orchestrator
// talks to every second factor through this interface.
type Strategy interface {
	// Issue sends a fresh login code. Strategies whose code is derived on
	// the user's device send nothing.
	Issue(ctx context.Context, s Subject) error
	Verify(ctx context.Context, s Subject, code string) error
	// Delivers reports whether Issue sends anything to the user.
	Delivers() bool
}

// EmailStrategy sends a login code by email.
type EmailStrategy struct{ m *Manager }

func (e EmailStrategy) Issue(ctx context.Context, s Subject) error {
	return e.m.IssueEmailCode(ctx, s, delivery.PurposeLogin)
}

func (e EmailStrategy) Verify(ctx context.Context, s Subject, code string) error {
	return e.m.VerifyCode(ctx, s, ChannelEmail, delivery.PurposeLogin, code)
}

func (EmailStrategy) Delivers() bool { return true }

// SMSStrategy sends a login code by text message.
type SMSStrategy struct{ m *Manager }

func (x SMSStrategy) Issue(ctx context.Context, s Subject) error {
	return x.m.IssueSMSCode(ctx, s, delivery.PurposeLogin)
}

func (x SMSStrategy) Verify(ctx context.Context, s Subject, code string) error {
	return x.m.VerifyCode(ctx, s, ChannelSMS, delivery.PurposeLogin, code)
}

func (SMSStrategy) Delivers() bool { return true }

// TOTPStrategy checks a code from an authenticator app.
type TOTPStrategy struct{ m *Manager }

func (TOTPStrategy) Issue(context.Context, Subject) error { return nil }

func (t TOTPStrategy) Verify(_ context.Context, s Subject, code string) error {
	return t.m.VerifyTOTP(s.TOTPSecret, code)
}

func (TOTPStrategy) Delivers() bool { return false }

func (m *Manager) Email() Strategy { return EmailStrategy{m: m} }
func (m *Manager) SMS() Strategy { return SMSStrategy{m: m} }
func (m *Manager) TOTP() Strategy { return TOTPStrategy{m: m} }

// StrategyFor maps a stored two-factor method name to its strategy.
func (m *Manager) StrategyFor(method string) (Strategy, bool) {
	switch method {
	case "EMAIL":
		return m.Email(), true
	case "SMS":
		return m.SMS(), true
	case "AUTHENTICATOR_APP":
		return m.TOTP(), true
	default:
		return nil, false
	}
}
