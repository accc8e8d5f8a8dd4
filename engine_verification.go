package twostep

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/twostep/challenge"
	"github.com/MrEthical07/twostep/delivery"
)

// VerifyEmail consumes an email verification code and marks the address
// verified. An account with no other method chosen gets email 2FA switched on
// unless TwoFactor.AutoEnableEmailOnVerify is off; an explicitly pending EMAIL
// method is always promoted.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if err := validateCode(email, code); err != nil {
		return err
	}

	acct, err := e.findForCode(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventEmailVerification, false, email, err, nil)
		return err
	}

	err = e.challenges.VerifyCode(ctx, acct.subject(), challenge.ChannelEmail, delivery.PurposeVerification, code)
	if err != nil {
		err = codeError(err)
		e.metricInc(MetricCodeVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerification, false, acct.Email, err, nil)
		return err
	}

	acct.EmailVerified = true
	switch {
	case acct.PendingTwoFactorMethod == TwoFactorEmail:
		acct.activate(TwoFactorEmail)
	case e.config.TwoFactor.AutoEnableEmailOnVerify &&
		noneOr(acct.TwoFactorMethod, TwoFactorEmail) &&
		noneOr(acct.PendingTwoFactorMethod, TwoFactorEmail):
		acct.activate(TwoFactorEmail)
	}

	if _, err := e.save(ctx, acct); err != nil {
		return err
	}
	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerification, true, acct.Email, nil, nil)
	return nil
}

// VerifyPhone consumes an SMS verification code and marks the phone number
// verified. A pending SMS method becomes the active one.
func (e *Engine) VerifyPhone(ctx context.Context, email, code string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if err := validateCode(email, code); err != nil {
		return err
	}

	acct, err := e.findForCode(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventPhoneVerification, false, email, err, nil)
		return err
	}
	if acct.PhoneNumber == "" && acct.PendingPhoneNumber == "" {
		return ErrPhoneRequired
	}

	err = e.challenges.VerifyCode(ctx, acct.phoneToVerify(), challenge.ChannelSMS, delivery.PurposeVerification, code)
	if err != nil {
		err = codeError(err)
		e.metricInc(MetricCodeVerificationFailure)
		e.emitAudit(ctx, auditEventPhoneVerification, false, acct.Email, err, nil)
		return err
	}

	if acct.PendingPhoneNumber != "" {
		acct.PhoneNumber = acct.PendingPhoneNumber
		acct.PendingPhoneNumber = ""
	}
	acct.PhoneVerified = true
	if acct.PendingTwoFactorMethod == TwoFactorSMS {
		acct.activate(TwoFactorSMS)
	}

	if _, err := e.save(ctx, acct); err != nil {
		return err
	}
	e.metricInc(MetricPhoneVerified)
	e.emitAudit(ctx, auditEventPhoneVerification, true, acct.Email, nil, nil)
	return nil
}

// VerifyTOTPSetup confirms a pending authenticator app with a code from the
// app and makes it the active method.
func (e *Engine) VerifyTOTPSetup(ctx context.Context, email, code string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	if err := validateCode(email, code); err != nil {
		return err
	}

	acct, err := e.find(ctx, email)
	if err != nil {
		return err
	}
	if acct.PendingTwoFactorMethod != TwoFactorAuthenticatorApp || acct.TOTPSecret == "" {
		e.emitAudit(ctx, auditEventTOTPSetupConfirm, false, acct.Email, ErrTwoFactorNotPending, nil)
		return ErrTwoFactorNotPending
	}

	if err := e.challenges.VerifyTOTP(acct.TOTPSecret, code); err != nil {
		err = codeError(err)
		e.metricInc(MetricCodeVerificationFailure)
		e.emitAudit(ctx, auditEventTOTPSetupConfirm, false, acct.Email, err, nil)
		return err
	}

	acct.activate(TwoFactorAuthenticatorApp)
	if _, err := e.save(ctx, acct); err != nil {
		return err
	}
	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPSetupConfirm, true, acct.Email, nil, nil)
	return nil
}

// ResendCode issues a fresh verification code over email or SMS, replacing
// any outstanding one. Unknown accounts get a nil error and no message.
func (e *Engine) ResendCode(ctx context.Context, email string, codeType CodeType) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	if codeType != CodeTypeEmail && codeType != CodeTypePhone {
		return wrap(ErrValidation, fmt.Errorf("unknown code type %q", codeType))
	}
	email = normalizeEmail(email)

	acct, err := e.find(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		e.emitAudit(ctx, auditEventCodeResent, false, email, err, reason(string(codeType)))
		return nil
	}
	if err != nil {
		return err
	}

	if codeType == CodeTypeEmail {
		err = e.challenges.IssueEmailCode(ctx, acct.subject(), delivery.PurposeVerification)
	} else {
		if acct.PhoneNumber == "" && acct.PendingPhoneNumber == "" {
			return ErrPhoneRequired
		}
		err = e.challenges.IssueSMSCode(ctx, acct.phoneToVerify(), delivery.PurposeVerification)
	}
	if err != nil {
		err = codeError(err)
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventCodeResent, false, acct.Email, err, reason(string(codeType)))
		return err
	}

	e.emitAudit(ctx, auditEventCodeResent, true, acct.Email, nil, reason(string(codeType)))
	return nil
}

// findForCode reports an unknown account as a bad code.
func (e *Engine) findForCode(ctx context.Context, email string) (*Account, error) {
	acct, err := e.find(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, wrap(ErrInvalidOrExpiredCode, challenge.ErrChallengeNotFound)
	}
	return acct, err
}

func (a *Account) activate(method TwoFactorMethod) {
	a.TwoFactorMethod = method
	a.TwoFactorEnabled = method != TwoFactorNone
	a.PendingTwoFactorMethod = TwoFactorNone
}

func noneOr(m, other TwoFactorMethod) bool {
	return m == "" || m == TwoFactorNone || m == other
}
