// Command twostepd serves the two-factor authentication API over HTTP.
//
// It is configured entirely from the environment; see config.go. Without
// DATABASE_URL accounts are kept in memory, and without SMTP_HOST codes are
// written to the log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/twostep"
	"github.com/MrEthical07/twostep/delivery"
	"github.com/MrEthical07/twostep/internal/httpapi"
	otelexport "github.com/MrEthical07/twostep/metrics/export/otel"
	"github.com/MrEthical07/twostep/metrics/export/prometheus"
	"github.com/MrEthical07/twostep/store/memstore"
	"github.com/MrEthical07/twostep/store/pgstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("twostepd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(env.Options{})
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := twostep.New().
		WithConfig(engineConfig(cfg)).
		WithLogger(logger).
		WithMetricsEnabled(cfg.MetricsEnabled).
		WithLatencyHistograms(cfg.MetricsEnabled).
		WithSMSSender(delivery.LogSMSSender{Logger: logger})

	if cfg.AuditEnabled {
		builder.WithAuditSink(twostep.NewSlogSink(logger.With(slog.String("stream", "audit"))))
	}

	email, err := emailSender(cfg, logger)
	if err != nil {
		return err
	}
	builder.WithEmailSender(email)

	db, err := accountStore(ctx, cfg, builder)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// Observed through whatever MeterProvider the process installs globally.
	bridge, err := otelexport.New(otel.GetMeterProvider().Meter("twostepd"), engine)
	if err != nil {
		return err
	}
	defer bridge.Close()

	opts := httpapi.Options{
		Logger:            logger,
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = prometheus.New(engine).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func engineConfig(cfg config) twostep.Config {
	out := twostep.DefaultConfig()
	out.JWT.Secret = []byte(cfg.JWTSecret)
	out.JWT.TTL = cfg.JWTTTL
	out.JWT.Issuer = cfg.JWTIssuer
	if floor := out.JWT.TTL + out.JWT.Leeway; out.Revocation.Retention < floor {
		out.Revocation.Retention = floor
	}
	out.Revocation.UseRedis = cfg.RevocationBackend == "redis"
	out.TwoFactor.DefaultPhoneRegion = cfg.PhoneRegion
	out.TwoFactor.AutoEnableEmailOnVerify = cfg.AutoEnableEmail
	out.Audit.Enabled = cfg.AuditEnabled
	return out
}

func emailSender(cfg config, logger *slog.Logger) (delivery.EmailSender, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, email codes are logged")
		return delivery.LogEmailSender{Logger: logger}, nil
	}
	return delivery.NewSMTPSender(delivery.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

// accountStore wires PostgreSQL, migrated on open, when DATABASE_URL is set. The returned
// *sql.DB is nil for the in-memory store.
func accountStore(ctx context.Context, cfg config, b *twostep.Builder) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		b.WithAccountStore(memstore.New())
		return nil, nil
	}

	store, db, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	b.WithAccountStore(store)
	return db, nil
}
