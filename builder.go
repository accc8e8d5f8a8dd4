package twostep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/twostep/challenge"
	"github.com/MrEthical07/twostep/delivery"
	internalaudit "github.com/MrEthical07/twostep/internal/audit"
	"github.com/MrEthical07/twostep/internal/rate"
	"github.com/MrEthical07/twostep/jwt"
	"github.com/MrEthical07/twostep/password"
	"github.com/MrEthical07/twostep/revocation"
)

// Builder assembles an [Engine]. Configure it during start-up, call Build
// once and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts       AccountStore
	revocations    revocation.Store
	challengeStore challenge.Store
	email          delivery.EmailSender
	sms            delivery.SMSSender
	auditSink      AuditSink
	logger         *slog.Logger
	now            func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs pending logins, one-time codes and the login limiter with
// Redis. Revocations move to Redis only when Config.Revocation.UseRedis is set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithRevocationStore overrides the revocation store chosen by Build.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.revocations = store
	return b
}

// WithChallengeStore overrides the challenge store chosen by Build.
func (b *Builder) WithChallengeStore(store challenge.Store) *Builder {
	b.challengeStore = store
	return b
}

func (b *Builder) WithEmailSender(sender delivery.EmailSender) *Builder {
	b.email = sender
	return b
}

func (b *Builder) WithSMSSender(sender delivery.SMSSender) *Builder {
	b.sms = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for failures the engine swallows. The default
// discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now in the engine and every component it builds.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component and starts the
// background sweepers. Call [Engine.Close] to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.email == nil {
		return nil, errors.New("email sender required")
	}
	if cfg.Revocation.UseRedis && b.redis == nil && b.revocations == nil {
		return nil, errors.New("Revocation UseRedis requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		accounts: b.accounts,
		logger:   logger,
		now:      now,
	}

	// -------- REVOCATION --------
	revStore := b.revocations
	switch {
	case revStore != nil:
	case cfg.Revocation.UseRedis:
		revStore = revocation.NewRedisStore(b.redis, cfg.Revocation.RedisKey, now)
	default:
		revStore = revocation.NewMemoryStore(revocation.WithClock(now))
	}
	sweeper, err := revocation.NewSweeper(revStore, cfg.Revocation.SweepInterval, cfg.Revocation.Retention, logger)
	if err != nil {
		return nil, err
	}
	engine.revocations = revStore
	engine.sweeper = sweeper

	// -------- CHALLENGES --------
	chStore := b.challengeStore
	switch {
	case chStore != nil:
	case b.redis != nil:
		chStore = challenge.NewRedisStore(b.redis, cfg.Challenge.RedisPrefix)
	default:
		chStore = challenge.NewMemoryStore()
	}
	if mem, ok := chStore.(*challenge.MemoryStore); ok {
		engine.janitor = newJanitor(mem, cfg.Challenge.LoginTTL, now)
	}

	cm, err := challenge.NewManager(challenge.Config{
		CodeDigits:      cfg.Challenge.CodeDigits,
		VerificationTTL: cfg.Challenge.VerificationTTL,
		LoginTTL:        cfg.Challenge.LoginTTL,
		TOTP: challenge.TOTPConfig{
			Issuer:    cfg.TOTP.Issuer,
			Period:    cfg.TOTP.Period,
			Digits:    cfg.TOTP.Digits,
			Skew:      cfg.TOTP.Skew,
			Algorithm: cfg.TOTP.Algorithm,
		},
	}, chStore, b.email, b.sms, challenge.WithClock(now))
	if err != nil {
		return nil, err
	}
	engine.challenges = cm

	// -------- CREDENTIALS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = hasher

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:      cfg.JWT.TTL,
		Secret:   cloneBytes(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
		KeyID:    cfg.JWT.KeyID,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	if b.redis != nil && cfg.Security.EnableLoginThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Challenge.RedisPrefix,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Cooldown:         cfg.Security.LoginCooldownDuration,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.sweeper.Start(context.Background())
	engine.janitor.start()

	b.built = true

	return engine, nil
}
