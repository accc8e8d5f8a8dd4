package twostep

import (
	"context"
	"time"

	"github.com/MrEthical07/twostep/challenge"
)

// TwoFactorMethod is the second factor an account uses at login.
type TwoFactorMethod string

const (
	TwoFactorNone             TwoFactorMethod = "NONE"
	TwoFactorEmail            TwoFactorMethod = "EMAIL"
	TwoFactorAuthenticatorApp TwoFactorMethod = "AUTHENTICATOR_APP"
	TwoFactorSMS              TwoFactorMethod = "SMS"
)

// Valid reports whether m is one of the known methods.
func (m TwoFactorMethod) Valid() bool {
	switch m {
	case TwoFactorNone, TwoFactorEmail, TwoFactorAuthenticatorApp, TwoFactorSMS:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of an account. Accounts are never
// hard-deleted; they move to INACTIVE or SUSPENDED instead.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountInactive  AccountStatus = "INACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended:
		return true
	}
	return false
}

// Account is the persisted user record. Email is the unique identifier and
// is always stored lower case.
type Account struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string

	PhoneNumber   string
	PhoneVerified bool
	// PendingPhoneNumber is a new number awaiting VerifyPhone. Codes keep
	// going to PhoneNumber until it is confirmed.
	PendingPhoneNumber string

	TwoFactorMethod  TwoFactorMethod
	TwoFactorEnabled bool
	// PendingTwoFactorMethod is a method chosen but not yet confirmed.
	PendingTwoFactorMethod TwoFactorMethod
	TOTPSecret             string

	EmailVerified bool
	Status        AccountStatus

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enabled reports whether the account may log in.
func (a *Account) Enabled() bool {
	return a != nil && a.Status == AccountActive && a.EmailVerified
}

func (a *Account) subject() challenge.Subject {
	return challenge.Subject{
		Email:      a.Email,
		Phone:      a.PhoneNumber,
		TOTPSecret: a.TOTPSecret,
	}
}

// phoneToVerify is the subject for phone verification codes: the pending
// number when one exists, else the number on file.
func (a *Account) phoneToVerify() challenge.Subject {
	s := a.subject()
	if a.PendingPhoneNumber != "" {
		s.Phone = a.PendingPhoneNumber
	}
	return s
}

// AccountStore persists accounts. FindByIdentifier returns an error wrapping
// ErrAccountNotFound when no account matches.
type AccountStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	Save(ctx context.Context, account *Account) (*Account, error)
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
}

// Provisioning is the authenticator-app setup payload.
type Provisioning = challenge.Provisioning

// SignupRequest is the input for [Engine.Signup]. TwoFactorMethod and
// PhoneNumber are optional.
type SignupRequest struct {
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirmPassword"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	PhoneNumber     string          `json:"phoneNumber"`
	TwoFactorMethod TwoFactorMethod `json:"twoFactorMethod"`
}

// SignupResult carries the provisioning payload when the caller asked for an
// authenticator app at signup.
type SignupResult struct {
	Email                  string          `json:"email"`
	PendingTwoFactorMethod TwoFactorMethod `json:"pendingTwoFactorMethod"`
	Provisioning           *Provisioning   `json:"provisioning,omitempty"`
}

// LoginState is where a login attempt stands after a successful call.
type LoginState uint8

const (
	// StateAuthenticated means Token holds a session token.
	StateAuthenticated LoginState = iota + 1
	// StateChallengePending means a second factor must be submitted to
	// LoginComplete with ChallengeID.
	StateChallengePending
)

func (s LoginState) String() string {
	switch s {
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateChallengePending:
		return "CHALLENGE_PENDING"
	default:
		return "UNKNOWN"
	}
}

// LoginResult is returned by [Engine.LoginInitiate] and [Engine.LoginComplete].
type LoginResult struct {
	State LoginState

	Token          string
	TokenExpiresAt time.Time

	ChallengeID        string
	Method             TwoFactorMethod
	ChallengeExpiresAt time.Time
}

// ChangeTwoFactorRequest is the input for [Engine.ChangeTwoFactorMethod].
// PhoneNumber is used only for SMS and may be omitted when one is on file.
type ChangeTwoFactorRequest struct {
	Email       string          `json:"-"`
	Password    string          `json:"password"`
	Method      TwoFactorMethod `json:"method"`
	PhoneNumber string          `json:"phoneNumber"`
}

// TwoFactorChange reports the outcome of a method change.
type TwoFactorChange struct {
	Method       TwoFactorMethod `json:"method"`
	Enabled      bool            `json:"enabled"`
	Pending      bool            `json:"pending"`
	Provisioning *Provisioning   `json:"provisioning,omitempty"`
}

// CodeType selects the channel for [Engine.ResendCode].
type CodeType string

const (
	CodeTypeEmail CodeType = "email"
	CodeTypePhone CodeType = "phone"
)

// Profile is the caller-visible view of an account.
type Profile struct {
	Email            string          `json:"email"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	PhoneNumber      string          `json:"phoneNumber,omitempty"`
	TwoFactorMethod  TwoFactorMethod `json:"twoFactorMethod"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
	EmailVerified    bool            `json:"emailVerified"`
	PhoneVerified    bool            `json:"phoneVerified"`
	Status           AccountStatus   `json:"status"`
	LastLoginAt      *time.Time      `json:"lastLoginAt,omitempty"`
}
