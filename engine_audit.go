package twostep

import (
	"context"
	"errors"

	"github.com/MrEthical07/twostep/challenge"
)

const (
	auditEventSignupSuccess          = "signup_success"
	auditEventSignupFailure          = "signup_failure"
	auditEventSignupDuplicate        = "signup_duplicate"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventChallengeIssued        = "challenge_issued"
	auditEventChallengeSuccess       = "challenge_success"
	auditEventChallengeFailure       = "challenge_failure"
	auditEventEmailVerification      = "email_verification"
	auditEventPhoneVerification      = "phone_verification"
	auditEventTOTPSetupConfirm       = "totp_setup_confirm"
	auditEventCodeResent             = "code_resent"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventTwoFactorChange        = "two_factor_change"
	auditEventLogout                 = "logout"
	auditEventAccountStatusChange    = "account_status_change"
	auditEventPasswordHashUpgrade    = "password_hash_upgrade"
	auditEventRevocationCheckFailure = "revocation_check_failure"
)

// AuditErrorCode is the machine-readable error field of an audit event.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrChallengeNotFound  AuditErrorCode = "challenge_not_found"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "account_not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRevokedToken       AuditErrorCode = "revoked_token"
	auditErrNotPending         AuditErrorCode = "not_pending"
	auditErrPhoneRequired      AuditErrorCode = "phone_required"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

// auditErrorCode reports the most precise cause; challenge errors are checked
// before the kinds that wrap them.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, challenge.ErrChallengeExpired):
		return auditErrCodeExpired
	case errors.Is(err, challenge.ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrDeliveryFailure),
		errors.Is(err, challenge.ErrDelivery):
		return auditErrDelivery
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrTokenRevoked):
		return auditErrRevokedToken
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrTwoFactorNotPending):
		return auditErrNotPending
	case errors.Is(err, ErrPhoneRequired):
		return auditErrPhoneRequired
	default:
		return auditErrInternal
	}
}
