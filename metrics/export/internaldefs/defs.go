package internaldefs

import (
	"github.com/MrEthical07/twostep"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   twostep.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   twostep.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: twostep.MetricSignupSuccess, Name: "twostep_signup_success_total", Help: "Accounts created."},
	{ID: twostep.MetricSignupDuplicate, Name: "twostep_signup_duplicate_total", Help: "Signups rejected for an existing email."},
	{ID: twostep.MetricLoginSuccess, Name: "twostep_login_success_total", Help: "Logins that ended with a token."},
	{ID: twostep.MetricLoginFailure, Name: "twostep_login_failure_total", Help: "Rejected login attempts."},
	{ID: twostep.MetricLoginRateLimited, Name: "twostep_login_rate_limited_total", Help: "Login attempts refused by the limiter."},
	{ID: twostep.MetricChallengeIssued, Name: "twostep_challenge_issued_total", Help: "Second-factor challenges started."},
	{ID: twostep.MetricChallengeSuccess, Name: "twostep_challenge_success_total", Help: "Second-factor challenges completed."},
	{ID: twostep.MetricChallengeFailure, Name: "twostep_challenge_failure_total", Help: "Failed second-factor completions."},
	{ID: twostep.MetricDeliveryFailure, Name: "twostep_delivery_failure_total", Help: "Codes that could not be sent."},
	{ID: twostep.MetricEmailVerified, Name: "twostep_email_verified_total", Help: "Email addresses verified."},
	{ID: twostep.MetricPhoneVerified, Name: "twostep_phone_verified_total", Help: "Phone numbers verified."},
	{ID: twostep.MetricTOTPEnabled, Name: "twostep_totp_enabled_total", Help: "Authenticator apps confirmed."},
	{ID: twostep.MetricCodeVerificationFailure, Name: "twostep_code_verification_failure_total", Help: "Rejected verification codes."},
	{ID: twostep.MetricPasswordChangeSuccess, Name: "twostep_password_change_success_total", Help: "Successful password changes."},
	{ID: twostep.MetricPasswordChangeInvalidOld, Name: "twostep_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: twostep.MetricTwoFactorChanged, Name: "twostep_two_factor_changed_total", Help: "Two-factor method changes."},
	{ID: twostep.MetricLogout, Name: "twostep_logout_total", Help: "Tokens revoked by logout."},
	{ID: twostep.MetricTokenInvalid, Name: "twostep_token_invalid_total", Help: "Tokens rejected by signature or expiry."},
	{ID: twostep.MetricTokenRevoked, Name: "twostep_token_revoked_total", Help: "Tokens rejected as revoked."},
	{ID: twostep.MetricAccountStatusChange, Name: "twostep_account_status_change_total", Help: "Account status changes."},
}

var HistogramDefs = []HistogramDef{
	{ID: twostep.MetricAuthenticateLatency, Name: "twostep_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or trims raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
