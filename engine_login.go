package twostep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/twostep/challenge"
)

// LoginInitiate checks the password and the account state. Accounts without
// a second factor get a token straight away; the rest get a pending login
// and, for email and SMS, a freshly delivered code.
//
// Every rejection is an *Error of kind ErrAuthenticationFailed. Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (e *Engine) LoginInitiate(ctx context.Context, email, secret string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.challenges == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)

	if err := validateCredentials(email, secret); err != nil {
		return nil, e.loginFailed(ctx, email, err, "validation")
	}

	if err := e.checkLoginLimit(ctx, email); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, email, err, nil)
		return nil, wrap(ErrAuthenticationFailed, err)
	}

	acct, err := e.verifyCredentials(ctx, email, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.recordLoginFailure(ctx, email)
		}
		return nil, e.loginFailed(ctx, email, err, "credentials")
	}
	if !acct.Enabled() {
		return nil, e.loginFailed(ctx, email, ErrAccountDisabled, string(acct.Status))
	}

	e.resetLoginLimit(ctx, email)
	e.upgradeHash(ctx, acct, secret)

	if !acct.TwoFactorEnabled || acct.TwoFactorMethod == TwoFactorNone {
		res, err := e.issueToken(ctx, acct)
		if err != nil {
			return nil, e.loginFailed(ctx, email, err, "token")
		}
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, acct.Email, nil, nil)
		return res, nil
	}

	return e.beginChallenge(ctx, acct)
}

func (e *Engine) beginChallenge(ctx context.Context, acct *Account) (*LoginResult, error) {
	method := acct.TwoFactorMethod
	strategy, ok := e.challenges.StrategyFor(string(method))
	if !ok {
		return nil, e.loginFailed(ctx, acct.Email,
			fmt.Errorf("unknown two-factor method %q", method), "method")
	}

	pending, err := e.challenges.BeginLogin(ctx, acct.Email, string(method))
	if err != nil {
		return nil, e.loginFailed(ctx, acct.Email, err, "pending_login")
	}

	if err := strategy.Issue(ctx, acct.subject()); err != nil {
		if _, derr := e.challenges.CompleteLogin(ctx, pending.ID); derr != nil {
			e.logger.WarnContext(ctx, "pending login not discarded",
				slog.String("challenge_id", pending.ID), slog.Any("error", derr))
		}
		e.metricInc(MetricDeliveryFailure)
		return nil, e.loginFailed(ctx, acct.Email, codeError(err), "delivery")
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, acct.Email, nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})

	return &LoginResult{
		State:              StateChallengePending,
		ChallengeID:        pending.ID,
		Method:             method,
		ChallengeExpiresAt: pending.ExpiresAt,
	}, nil
}

// LoginComplete finishes a pending login with the second-factor code. A wrong
// code leaves the pending login usable until it expires. Of several
// concurrent completions with a valid code exactly one receives a token.
func (e *Engine) LoginComplete(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil || e.challenges == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateCode(challengeID, code); err != nil {
		return nil, e.challengeFailed(ctx, "", err)
	}

	pending, err := e.challenges.PendingLogin(ctx, challengeID)
	if err != nil {
		return nil, e.challengeFailed(ctx, "", codeError(err))
	}

	acct, err := e.find(ctx, pending.Subject)
	if err != nil {
		return nil, e.challengeFailed(ctx, pending.Subject, err)
	}

	strategy, ok := e.challenges.StrategyFor(pending.Method)
	if !ok {
		return nil, e.challengeFailed(ctx, acct.Email,
			fmt.Errorf("unknown two-factor method %q", pending.Method))
	}
	if err := strategy.Verify(ctx, acct.subject(), code); err != nil {
		return nil, e.challengeFailed(ctx, acct.Email, codeError(err))
	}

	won, err := e.challenges.CompleteLogin(ctx, challengeID)
	if err != nil {
		return nil, e.challengeFailed(ctx, acct.Email, err)
	}
	if !won {
		return nil, e.challengeFailed(ctx, acct.Email, codeError(challenge.ErrChallengeNotFound))
	}

	if !acct.Enabled() {
		return nil, e.challengeFailed(ctx, acct.Email, ErrAccountDisabled)
	}

	res, err := e.issueToken(ctx, acct)
	if err != nil {
		return nil, e.challengeFailed(ctx, acct.Email, err)
	}

	e.metricInc(MetricChallengeSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventChallengeSuccess, true, acct.Email, nil, func() map[string]string {
		return map[string]string{"method": pending.Method}
	})
	return res, nil
}

func (e *Engine) loginFailed(ctx context.Context, email string, cause error, why string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, email, cause, reason(why))
	return wrap(ErrAuthenticationFailed, cause)
}

func (e *Engine) challengeFailed(ctx context.Context, email string, cause error) error {
	e.metricInc(MetricChallengeFailure)
	e.emitAudit(ctx, auditEventChallengeFailure, false, email, cause, nil)
	return wrap(ErrAuthenticationFailed, cause)
}
