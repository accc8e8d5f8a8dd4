package twostep

import (
	"context"
	"errors"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
)

func TestSignupThenVerifyEnablesLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.Signup(ctx, signupRequest("  Ada@Example.com "))
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if res.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", res.Email)
	}

	acct := env.accounts.get(t, "ada@example.com")
	if acct.EmailVerified || acct.Status != AccountActive || acct.TwoFactorMethod != TwoFactorNone {
		t.Fatalf("unexpected fresh account: %+v", acct)
	}
	if !strings.HasPrefix(acct.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", acct.PasswordHash)
	}

	_, err = env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrAccountDisabled)

	if err := env.engine.VerifyEmail(ctx, "ada@example.com", env.email.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	acct = env.accounts.get(t, "ada@example.com")
	if !acct.EmailVerified {
		t.Fatalf("expected email verified")
	}
	if acct.TwoFactorMethod != TwoFactorEmail || !acct.TwoFactorEnabled {
		t.Fatalf("expected email 2FA auto-enabled, got %s enabled=%v", acct.TwoFactorMethod, acct.TwoFactorEnabled)
	}

	login, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if login.State != StateChallengePending || login.Method != TwoFactorEmail {
		t.Fatalf("expected email challenge, got %+v", login)
	}
}

func TestVerifyEmailWithoutAutoEnable(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		cfg := testConfig()
		cfg.TwoFactor.AutoEnableEmailOnVerify = false
		b.WithConfig(cfg)
	})
	acct := env.verifiedAccount(t, "ada@example.com", nil)

	if acct.TwoFactorEnabled || acct.TwoFactorMethod != TwoFactorNone {
		t.Fatalf("expected 2FA untouched, got %s enabled=%v", acct.TwoFactorMethod, acct.TwoFactorEnabled)
	}
	login, err := env.engine.LoginInitiate(context.Background(), "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if login.State != StateAuthenticated || login.Token == "" {
		t.Fatalf("expected a token, got %+v", login)
	}
}

func TestVerifyEmailRejectsWrongAndReusedCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, signupRequest("ada@example.com")); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := env.email.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	assertKind(t, env.engine.VerifyEmail(ctx, "ada@example.com", wrong), ErrInvalidOrExpiredCode)
	if err := env.engine.VerifyEmail(ctx, "ada@example.com", code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	assertKind(t, env.engine.VerifyEmail(ctx, "ada@example.com", code), ErrInvalidOrExpiredCode)
	assertKind(t, env.engine.VerifyEmail(ctx, "nobody@example.com", code), ErrInvalidOrExpiredCode)
}

func TestSignupRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, signupRequest("ada@example.com")); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	_, err := env.engine.Signup(ctx, signupRequest("ADA@example.com"))
	assertKind(t, err, ErrAccountExists)

	if got := env.engine.MetricsSnapshot().Counters[MetricSignupDuplicate]; got != 1 {
		t.Fatalf("expected one duplicate signup, got %d", got)
	}
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*SignupRequest)
		field string
	}{
		{"bad email", func(r *SignupRequest) { r.Email = "not-an-email" }, "email"},
		{"short password", func(r *SignupRequest) { r.Password, r.ConfirmPassword = "abc", "abc" }, "password"},
		{"confirmation mismatch", func(r *SignupRequest) { r.ConfirmPassword = "something-else" }, "confirmPassword"},
		{"unknown method", func(r *SignupRequest) { r.TwoFactorMethod = "CARRIER_PIGEON" }, "twoFactorMethod"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := signupRequest("ada@example.com")
			tc.edit(&req)

			_, err := env.engine.Signup(context.Background(), req)
			assertKind(t, err, ErrValidation)

			var fields validation.Errors
			if !errors.As(err, &fields) {
				t.Fatalf("expected field errors, got %T", err)
			}
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected an error for %s, got %v", tc.field, fields)
			}
			if env.email.count() != 0 {
				t.Fatalf("no code should be sent for invalid input")
			}
		})
	}
}

func TestSignupWithSMSRequiresPhone(t *testing.T) {
	env := newTestEnv(t)
	req := signupRequest("ada@example.com")
	req.TwoFactorMethod = TwoFactorSMS

	_, err := env.engine.Signup(context.Background(), req)
	assertKind(t, err, ErrPhoneRequired)

	req.PhoneNumber = "(650) 253-0000"
	res, err := env.engine.Signup(context.Background(), req)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if res.PendingTwoFactorMethod != TwoFactorSMS {
		t.Fatalf("expected SMS pending, got %s", res.PendingTwoFactorMethod)
	}
	acct := env.accounts.get(t, "ada@example.com")
	if acct.PhoneNumber != "+16502530000" {
		t.Fatalf("expected E.164 phone, got %q", acct.PhoneNumber)
	}
}

func TestSignupWithAuthenticatorAppReturnsProvisioning(t *testing.T) {
	env := newTestEnv(t)
	req := signupRequest("ada@example.com")
	req.TwoFactorMethod = TwoFactorAuthenticatorApp

	res, err := env.engine.Signup(context.Background(), req)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if res.Provisioning == nil || !strings.HasPrefix(res.Provisioning.URI, "otpauth://totp/") {
		t.Fatalf("expected provisioning URI, got %+v", res.Provisioning)
	}

	acct := env.accounts.get(t, "ada@example.com")
	if acct.PendingTwoFactorMethod != TwoFactorAuthenticatorApp || acct.TOTPSecret != res.Provisioning.Secret {
		t.Fatalf("expected pending authenticator app with stored secret, got %+v", acct)
	}
}

func TestSignupDeliveryFailureSavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.email.fail = errors.New("smtp down")

	_, err := env.engine.Signup(context.Background(), signupRequest("ada@example.com"))
	assertKind(t, err, ErrDeliveryFailure)

	if exists, _ := env.accounts.ExistsByIdentifier(context.Background(), "ada@example.com"); exists {
		t.Fatalf("account must not be stored after delivery failure")
	}

	env.email.fail = nil
	if _, err := env.engine.Signup(context.Background(), signupRequest("ada@example.com")); err != nil {
		t.Fatalf("retry after delivery failure failed: %v", err)
	}
}
