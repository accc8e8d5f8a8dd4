package twostep

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/twostep/challenge"
)

func TestLoginUnknownAccountAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", withoutTwoFactor)
	ctx := context.Background()

	_, unknownErr := env.engine.LoginInitiate(ctx, "nobody@example.com", testPassword)
	_, wrongErr := env.engine.LoginInitiate(ctx, "ada@example.com", "not-the-password")

	for _, err := range []error{unknownErr, wrongErr} {
		assertKind(t, err, ErrAuthenticationFailed)
		assertKind(t, err, ErrInvalidCredentials)
		if errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("unknown account must not be distinguishable: %v", err)
		}
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginWithoutTwoFactorIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", withoutTwoFactor)
	ctx := context.Background()

	res, err := env.engine.LoginInitiate(ctx, "Ada@Example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if res.State != StateAuthenticated || res.Token == "" {
		t.Fatalf("expected token, got %+v", res)
	}
	if want := env.clock.Now().Add(24 * time.Hour); !res.TokenExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.TokenExpiresAt)
	}

	claims, err := env.engine.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if claims.Subject != "ada@example.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}

	acct := env.accounts.get(t, "ada@example.com")
	if acct.LastLoginAt == nil || !acct.LastLoginAt.Equal(env.clock.Now()) {
		t.Fatalf("expected last login stamped, got %v", acct.LastLoginAt)
	}
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", func(a *Account) {
		withoutTwoFactor(a)
		a.Status = AccountSuspended
	})

	_, err := env.engine.LoginInitiate(context.Background(), "ada@example.com", testPassword)
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrAccountDisabled)
}

func TestLoginWithEmailCode(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", nil)
	ctx := context.Background()
	sentBefore := env.email.count()

	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if res.State != StateChallengePending || res.ChallengeID == "" || res.Token != "" {
		t.Fatalf("expected a pending challenge, got %+v", res)
	}
	if env.email.count() != sentBefore+1 {
		t.Fatalf("expected a login code to be mailed")
	}
	code := env.email.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = env.engine.LoginComplete(ctx, res.ChallengeID, wrong)
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrInvalidOrExpiredCode)
	assertKind(t, err, challenge.ErrCodeMismatch)

	done, err := env.engine.LoginComplete(ctx, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("LoginComplete after a mismatch failed: %v", err)
	}
	if done.State != StateAuthenticated || done.Token == "" {
		t.Fatalf("expected token, got %+v", done)
	}

	_, err = env.engine.LoginComplete(ctx, res.ChallengeID, code)
	assertKind(t, err, ErrAuthenticationFailed)
}

func TestLoginChallengeExpires(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", nil)
	ctx := context.Background()

	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	env.clock.Advance(5*time.Minute + time.Second)

	_, err = env.engine.LoginComplete(ctx, res.ChallengeID, env.email.lastCode(t))
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrInvalidOrExpiredCode)
}

func TestLoginWithSMSCode(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", func(a *Account) {
		a.PhoneNumber = "+16502530000"
		a.PhoneVerified = true
		a.TwoFactorMethod = TwoFactorSMS
		a.TwoFactorEnabled = true
	})
	ctx := context.Background()

	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if res.Method != TwoFactorSMS {
		t.Fatalf("expected SMS challenge, got %s", res.Method)
	}
	if _, err := env.engine.LoginComplete(ctx, res.ChallengeID, env.sms.lastCode(t)); err != nil {
		t.Fatalf("LoginComplete failed: %v", err)
	}
}

func TestLoginDeliveryFailureDiscardsChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", nil)
	env.email.fail = errors.New("smtp down")

	_, err := env.engine.LoginInitiate(context.Background(), "ada@example.com", testPassword)
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrDeliveryFailure)
}

func (env *testEnv) totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	cfg := env.engine.config.TOTP
	code, err := challenge.GenerateTOTP(challenge.TOTPConfig{
		Issuer:    cfg.Issuer,
		Digits:    cfg.Digits,
		Period:    cfg.Period,
		Skew:      cfg.Skew,
		Algorithm: cfg.Algorithm,
	}, secret, at)
	if err != nil {
		t.Fatalf("GenerateTOTP failed: %v", err)
	}
	return code
}

func TestLoginWithAuthenticatorApp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := signupRequest("ada@example.com")
	req.TwoFactorMethod = TwoFactorAuthenticatorApp
	signup, err := env.engine.Signup(ctx, req)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, "ada@example.com", env.email.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if acct := env.accounts.get(t, "ada@example.com"); acct.TwoFactorEnabled {
		t.Fatalf("pending authenticator app must not be enabled before setup: %+v", acct)
	}

	secret := signup.Provisioning.Secret
	if err := env.engine.VerifyTOTPSetup(ctx, "ada@example.com", env.totpCode(t, secret, env.clock.Now())); err != nil {
		t.Fatalf("VerifyTOTPSetup failed: %v", err)
	}
	acct := env.accounts.get(t, "ada@example.com")
	if acct.TwoFactorMethod != TwoFactorAuthenticatorApp || !acct.TwoFactorEnabled || acct.PendingTwoFactorMethod != TwoFactorNone {
		t.Fatalf("expected authenticator app active, got %+v", acct)
	}

	sentBefore := env.email.count()
	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if res.Method != TwoFactorAuthenticatorApp {
		t.Fatalf("expected authenticator challenge, got %s", res.Method)
	}
	if env.email.count() != sentBefore || env.sms.count() != 0 {
		t.Fatalf("authenticator challenge must not deliver anything")
	}

	env.clock.Advance(40 * time.Second)
	for _, drift := range []time.Duration{-3 * 30 * time.Second, 3 * 30 * time.Second} {
		_, err := env.engine.LoginComplete(ctx, res.ChallengeID, env.totpCode(t, secret, env.clock.Now().Add(drift)))
		assertKind(t, err, ErrAuthenticationFailed)
	}

	done, err := env.engine.LoginComplete(ctx, res.ChallengeID, env.totpCode(t, secret, env.clock.Now()))
	if err != nil {
		t.Fatalf("LoginComplete failed: %v", err)
	}
	if done.Token == "" {
		t.Fatalf("expected token")
	}
}

func TestLoginCompleteHasSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.verifiedAccount(t, "ada@example.com", nil)

	req := ChangeTwoFactorRequest{Email: "ada@example.com", Password: testPassword, Method: TwoFactorAuthenticatorApp}
	change, err := env.engine.ChangeTwoFactorMethod(ctx, req)
	if err != nil {
		t.Fatalf("ChangeTwoFactorMethod failed: %v", err)
	}
	secret := change.Provisioning.Secret
	if err := env.engine.VerifyTOTPSetup(ctx, "ada@example.com", env.totpCode(t, secret, env.clock.Now())); err != nil {
		t.Fatalf("VerifyTOTPSetup failed: %v", err)
	}

	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	code := env.totpCode(t, secret, env.clock.Now())

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := env.engine.LoginComplete(ctx, res.ChallengeID, code)
			if err != nil {
				if !errors.Is(err, ErrAuthenticationFailed) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if done.Token != "" {
				mu.Lock()
				tokens++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if tokens != 1 {
		t.Fatalf("expected exactly one token, got %d", tokens)
	}
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	env := newTestEnv(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	env.verifiedAccount(t, "ada@example.com", func(a *Account) {
		withoutTwoFactor(a)
		a.PasswordHash = string(legacy)
	})

	if _, err := env.engine.LoginInitiate(context.Background(), "ada@example.com", testPassword); err != nil {
		t.Fatalf("LoginInitiate with bcrypt hash failed: %v", err)
	}

	acct := env.accounts.get(t, "ada@example.com")
	if !strings.HasPrefix(acct.PasswordHash, "$argon2id$") {
		t.Fatalf("expected hash upgraded to argon2id, got %q", acct.PasswordHash)
	}
	if _, err := env.engine.LoginInitiate(context.Background(), "ada@example.com", testPassword); err != nil {
		t.Fatalf("LoginInitiate with upgraded hash failed: %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	mr, rdb := newTestRedis(t)
	env := newTestEnv(t, func(b *Builder) { b.WithRedis(rdb) })
	env.verifiedAccount(t, "ada@example.com", withoutTwoFactor)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 5; i++ {
		_, err := env.engine.LoginInitiate(ctx, "ada@example.com", "not-the-password")
		assertKind(t, err, ErrInvalidCredentials)
	}

	_, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrLoginRateLimited)

	mr.FastForward(16 * time.Minute)
	if _, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword); err != nil {
		t.Fatalf("login after cooldown failed: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited login, got %d", got)
	}
}

func TestLoginCompleteRechecksAccountStatus(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedAccount(t, "ada@example.com", nil)
	ctx := context.Background()

	res, err := env.engine.LoginInitiate(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("LoginInitiate failed: %v", err)
	}
	if err := env.engine.SetAccountStatus(ctx, "ada@example.com", AccountSuspended); err != nil {
		t.Fatalf("SetAccountStatus failed: %v", err)
	}

	_, err = env.engine.LoginComplete(ctx, res.ChallengeID, env.email.lastCode(t))
	assertKind(t, err, ErrAuthenticationFailed)
	assertKind(t, err, ErrAccountDisabled)
}
