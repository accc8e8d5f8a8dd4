package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string        `env:"JWT_SECRET,required,unset"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"twostep"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	// RevocationBackend is "memory" or "redis".
	RevocationBackend string `env:"REVOCATION_BACKEND" envDefault:"memory"`

	SMTP smtpConfig `envPrefix:"SMTP_"`

	PhoneRegion     string  `env:"PHONE_REGION" envDefault:"US"`
	MetricsEnabled  bool    `env:"METRICS_ENABLED" envDefault:"true"`
	AuditEnabled    bool    `env:"AUDIT_ENABLED" envDefault:"true"`
	RateLimitRPS    float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst  int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	AutoEnableEmail bool    `env:"AUTO_ENABLE_EMAIL_2FA" envDefault:"true"`
}

type smtpConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD,unset"`
	From     string `env:"FROM"`
}

func loadConfig(opts env.Options) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	switch c.RevocationBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REVOCATION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown REVOCATION_BACKEND %q", c.RevocationBackend)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("SMTP_FROM is required with SMTP_HOST")
	}
	return nil
}

func (c config) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
