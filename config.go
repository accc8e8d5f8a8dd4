package twostep

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of the engine. Start from [DefaultConfig] and
// override fields; Build validates the result.
type Config struct {
	JWT        JWTConfig
	Challenge  ChallengeConfig
	TOTP       TOTPConfig
	Revocation RevocationConfig
	Password   PasswordConfig
	TwoFactor  TwoFactorConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 session tokens. Secret must be at least 32 bytes.
type JWTConfig struct {
	TTL      time.Duration
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
	KeyID    string
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig sets the one-time code length and its two lifetimes.
type ChallengeConfig struct {
	CodeDigits      int
	VerificationTTL time.Duration
	LoginTTL        time.Duration
	// RedisPrefix namespaces challenge keys when a Redis client is supplied.
	RedisPrefix string
}

// TOTPConfig configures authenticator-app codes.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls how long revoked tokens are remembered.
// Retention must cover the token TTL plus leeway so a revoked token cannot become valid
// again before it expires.
type RevocationConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
	// RedisKey is the sorted set used when revocations live in Redis.
	RedisKey string
	// UseRedis keeps revocations in Redis instead of process memory.
	// It needs a Redis client on the builder.
	UseRedis bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the signup password policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

// TwoFactorConfig tunes second-factor enrolment.
type TwoFactorConfig struct {
	// AutoEnableEmailOnVerify turns on EMAIL as the second factor once the
	// address is verified, unless another method is active or pending.
	AutoEnableEmailOnVerify bool
	// DefaultPhoneRegion is the ISO region used for numbers without a
	// leading +country code.
	DefaultPhoneRegion string
}

// SecurityConfig configures the failed-login limiter. It is active only when
// the builder has a Redis client.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.Secret is left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:    24 * time.Hour,
			Issuer: "twostep",
			Leeway: 30 * time.Second,
		},
		Challenge: ChallengeConfig{
			CodeDigits:      6,
			VerificationTTL: 10 * time.Minute,
			LoginTTL:        5 * time.Minute,
			RedisPrefix:     "twostep",
		},
		TOTP: TOTPConfig{
			Issuer:    "twostep",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Revocation: RevocationConfig{
			Retention:     25 * time.Hour,
			SweepInterval: time.Hour,
			RedisKey:      "twostep:revoked",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      6,
			UpgradeOnLogin: true,
		},
		TwoFactor: TwoFactorConfig{
			AutoEnableEmailOnVerify: true,
			DefaultPhoneRegion:      "US",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field constraints. Build calls it; callers may too.
func (c *Config) Validate() error {
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	if c.Challenge.CodeDigits < 4 || c.Challenge.CodeDigits > 10 {
		return errors.New("Challenge CodeDigits must be between 4 and 10")
	}
	if c.Challenge.VerificationTTL <= 0 || c.Challenge.LoginTTL <= 0 {
		return errors.New("Challenge TTLs must be > 0")
	}

	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be between 6 and 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be within [0, 3]")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	if c.Revocation.Retention < c.JWT.TTL+c.JWT.Leeway {
		return errors.New("Revocation Retention must be >= JWT TTL + Leeway")
	}
	if c.Revocation.SweepInterval <= 0 {
		return errors.New("Revocation SweepInterval must be > 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
