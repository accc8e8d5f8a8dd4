package twostep

import (
	"context"
	"strings"

	"github.com/MrEthical07/twostep/delivery"
)

// Signup creates an unverified account and emails it a verification code.
// The account is saved only after the code is delivered, so a delivery
// failure leaves nothing behind and the caller may simply retry.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if e == nil || e.passwordHash == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}

	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.TwoFactorMethod == "" {
		req.TwoFactorMethod = TwoFactorNone
	}

	if err := e.validateSignup(req); err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, req.Email, err, nil)
		return nil, err
	}

	phone, err := e.normalizePhone(req.PhoneNumber)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, req.Email, err, reason("phone"))
		return nil, err
	}
	if req.TwoFactorMethod == TwoFactorSMS && phone == "" {
		e.emitAudit(ctx, auditEventSignupFailure, false, req.Email, ErrPhoneRequired, nil)
		return nil, ErrPhoneRequired
	}

	exists, err := e.accounts.ExistsByIdentifier(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupDuplicate, false, req.Email, ErrAccountExists, nil)
		return nil, ErrAccountExists
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	acct := &Account{
		Email:                  req.Email,
		PasswordHash:           hash,
		FirstName:              req.FirstName,
		LastName:               req.LastName,
		PhoneNumber:            phone,
		TwoFactorMethod:        TwoFactorNone,
		PendingTwoFactorMethod: TwoFactorNone,
		Status:                 AccountActive,
		CreatedAt:              e.now().UTC(),
	}
	result := &SignupResult{
		Email:                  acct.Email,
		PendingTwoFactorMethod: req.TwoFactorMethod,
	}

	switch req.TwoFactorMethod {
	case TwoFactorAuthenticatorApp:
		prov, err := e.challenges.SetupAuthenticatorApp(acct.subject())
		if err != nil {
			return nil, err
		}
		acct.TOTPSecret = prov.Secret
		acct.PendingTwoFactorMethod = TwoFactorAuthenticatorApp
		result.Provisioning = prov
	case TwoFactorEmail, TwoFactorSMS:
		acct.PendingTwoFactorMethod = req.TwoFactorMethod
	}

	if err := e.challenges.IssueEmailCode(ctx, acct.subject(), delivery.PurposeVerification); err != nil {
		err = codeError(err)
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventSignupFailure, false, acct.Email, err, reason("verification_email"))
		return nil, err
	}

	if _, err := e.save(ctx, acct); err != nil {
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, acct.Email, nil, func() map[string]string {
		return map[string]string{"pending_method": string(acct.PendingTwoFactorMethod)}
	})
	return result, nil
}

// normalizePhone returns "" for blank input and E.164 otherwise.
func (e *Engine) normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	phone, err := delivery.NormalizePhone(raw, e.config.TwoFactor.DefaultPhoneRegion)
	if err != nil {
		return "", wrap(ErrValidation, err)
	}
	return phone, nil
}
