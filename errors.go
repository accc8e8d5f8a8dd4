package twostep

import "errors"

var (
	// ErrValidation marks malformed input. Field messages are carried by the cause.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for an unknown account and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthenticationFailed is the outward kind of every failed login step.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountDisabled covers suspended, inactive and unverified accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidOrExpiredCode hides which of not found, expired or mismatch occurred.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrDeliveryFailure means an email or SMS could not be sent. Callers may retry.
	ErrDeliveryFailure = errors.New("code delivery failed")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrTokenRevoked    = errors.New("token revoked")
	// ErrTwoFactorNotPending is returned when a setup step runs without a method awaiting confirmation.
	ErrTwoFactorNotPending = errors.New("two-factor method not pending")
	ErrPhoneRequired       = errors.New("phone number required")
	ErrLoginRateLimited    = errors.New("login rate limited")
	ErrEngineNotReady      = errors.New("engine not initialized")
)

// Error pairs an outward error kind with the precise cause. Error() returns
// only the kind's message; errors.Is matches both.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func wrap(kind, cause error) error {
	if cause == nil || cause == kind {
		return kind
	}
	return &Error{Kind: kind, Cause: cause}
}
