package twostep

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/twostep/internal/rate"
)

// verifyCredentials checks a password against the stored hash. Unknown
// accounts still pay for one hash verification, so the two failure paths
// cost the same and return the same error.
func (e *Engine) verifyCredentials(ctx context.Context, email, secret string) (*Account, error) {
	acct, err := e.find(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		_, _ = e.passwordHash.Verify(secret, e.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := e.passwordHash.Verify(secret, acct.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "stored password hash rejected",
			slog.String("email", acct.Email), slog.Any("error", err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// upgradeHash rehashes a verified password when the stored hash is bcrypt or
// uses weaker argon2id parameters than configured. Failures are logged only.
func (e *Engine) upgradeHash(ctx context.Context, acct *Account, secret string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.passwordHash.Hash(secret)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", slog.Any("error", err))
		return
	}
	previous := acct.PasswordHash
	acct.PasswordHash = upgraded
	if _, err := e.save(ctx, acct); err != nil {
		acct.PasswordHash = previous
		e.logger.WarnContext(ctx, "password rehash not persisted",
			slog.String("email", acct.Email), slog.Any("error", err))
		e.emitAudit(ctx, auditEventPasswordHashUpgrade, false, acct.Email, err, nil)
		return
	}
	e.emitAudit(ctx, auditEventPasswordHashUpgrade, true, acct.Email, nil, nil)
}

// checkLoginLimit returns ErrLoginRateLimited once the identifier or the
// caller's IP has used up its attempts.
func (e *Engine) checkLoginLimit(ctx context.Context, email string) error {
	if e.rateLimiter == nil {
		return nil
	}
	err := e.rateLimiter.CheckLogin(ctx, email, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	default:
		e.logger.ErrorContext(ctx, "login limiter unavailable", slog.Any("error", err))
		return wrap(ErrLoginRateLimited, err)
	}
}

func (e *Engine) recordLoginFailure(ctx context.Context, email string) {
	if e.rateLimiter == nil {
		return
	}
	err := e.rateLimiter.IncrementLogin(ctx, email, clientIPFromContext(ctx))
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.WarnContext(ctx, "login failure not counted", slog.Any("error", err))
	}
}

func (e *Engine) resetLoginLimit(ctx context.Context, email string) {
	if e.rateLimiter == nil {
		return
	}
	if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "login limiter reset failed", slog.Any("error", err))
	}
}
