package twostep

import (
	"context"
	"strconv"

	"github.com/MrEthical07/twostep/delivery"
)

// ChangePassword replaces the password of an authenticated account after
// re-checking the current one. Tokens already issued stay valid.
func (e *Engine) ChangePassword(ctx context.Context, email, current, next, confirm string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if err := e.validatePasswordChange(current, next, confirm); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, email, err, nil)
		return err
	}

	acct, err := e.find(ctx, email)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(current, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, acct.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(next)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	if _, err := e.save(ctx, acct); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, acct.Email, nil, nil)
	return nil
}

// ChangeTwoFactorMethod switches the second factor after re-checking the
// password.
//
// NONE and EMAIL take effect at once. AUTHENTICATOR_APP stays pending until
// VerifyTOTPSetup and returns the provisioning payload. SMS takes effect at
// once for an already verified number and otherwise stays pending until
// VerifyPhone; a verification code is sent to the new number, which is held
// in PendingPhoneNumber so login codes keep reaching the confirmed one.
func (e *Engine) ChangeTwoFactorMethod(ctx context.Context, req ChangeTwoFactorRequest) (*TwoFactorChange, error) {
	if e == nil || e.passwordHash == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	req.Email = normalizeEmail(req.Email)
	if err := validateTwoFactorChange(req); err != nil {
		return nil, err
	}

	acct, err := e.find(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	ok, err := e.passwordHash.Verify(req.Password, acct.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventTwoFactorChange, false, acct.Email, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	change := &TwoFactorChange{Method: req.Method}

	switch req.Method {
	case TwoFactorNone, TwoFactorEmail:
		acct.activate(req.Method)
		acct.TOTPSecret = ""
		change.Enabled = acct.TwoFactorEnabled

	case TwoFactorAuthenticatorApp:
		prov, err := e.challenges.SetupAuthenticatorApp(acct.subject())
		if err != nil {
			return nil, err
		}
		acct.TOTPSecret = prov.Secret
		acct.PendingTwoFactorMethod = TwoFactorAuthenticatorApp
		change.Enabled = acct.TwoFactorEnabled
		change.Pending = true
		change.Provisioning = prov

	case TwoFactorSMS:
		raw := req.PhoneNumber
		if raw == "" {
			raw = acct.PhoneNumber
		}
		phone, err := e.normalizePhone(raw)
		if err != nil {
			return nil, err
		}
		if phone == "" {
			return nil, ErrPhoneRequired
		}
		if phone == acct.PhoneNumber && acct.PhoneVerified {
			acct.PendingPhoneNumber = ""
			acct.activate(TwoFactorSMS)
			change.Enabled = true
			break
		}

		if acct.PhoneVerified {
			acct.PendingPhoneNumber = phone
		} else {
			acct.PhoneNumber = phone
			acct.PendingPhoneNumber = ""
		}
		acct.PendingTwoFactorMethod = TwoFactorSMS
		if err := e.challenges.IssueSMSCode(ctx, acct.phoneToVerify(), delivery.PurposeVerification); err != nil {
			err = codeError(err)
			e.metricInc(MetricDeliveryFailure)
			e.emitAudit(ctx, auditEventTwoFactorChange, false, acct.Email, err, reason("sms_verification"))
			return nil, err
		}
		change.Enabled = acct.TwoFactorEnabled
		change.Pending = true
	}

	if _, err := e.save(ctx, acct); err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorChanged)
	e.emitAudit(ctx, auditEventTwoFactorChange, true, acct.Email, nil, func() map[string]string {
		return map[string]string{
			"method":  string(req.Method),
			"pending": strconv.FormatBool(change.Pending),
		}
	})
	return change, nil
}

// QRPayload returns the provisioning payload of an authenticator app that is
// waiting for confirmation.
func (e *Engine) QRPayload(ctx context.Context, email string) (*Provisioning, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	acct, err := e.find(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct.PendingTwoFactorMethod != TwoFactorAuthenticatorApp || acct.TOTPSecret == "" {
		return nil, ErrTwoFactorNotPending
	}
	return e.challenges.Provisioning(acct.subject())
}

func (e *Engine) Profile(ctx context.Context, email string) (*Profile, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	acct, err := e.find(ctx, email)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Email:            acct.Email,
		FirstName:        acct.FirstName,
		LastName:         acct.LastName,
		PhoneNumber:      acct.PhoneNumber,
		TwoFactorMethod:  acct.TwoFactorMethod,
		TwoFactorEnabled: acct.TwoFactorEnabled,
		EmailVerified:    acct.EmailVerified,
		PhoneVerified:    acct.PhoneVerified,
		Status:           acct.Status,
		LastLoginAt:      acct.LastLoginAt,
	}, nil
}
