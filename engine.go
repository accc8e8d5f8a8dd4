package twostep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/twostep/challenge"
	internalaudit "github.com/MrEthical07/twostep/internal/audit"
	"github.com/MrEthical07/twostep/internal/rate"
	"github.com/MrEthical07/twostep/jwt"
	"github.com/MrEthical07/twostep/password"
	"github.com/MrEthical07/twostep/revocation"
)

// Engine runs every authentication flow. It is built by [Builder] and is
// safe for concurrent use.
type Engine struct {
	config       Config
	accounts     AccountStore
	passwordHash *password.Hasher
	dummyHash    string
	challenges   *challenge.Manager
	jwtManager   *jwt.Manager
	revocations  revocation.Store
	sweeper      *revocation.Sweeper
	janitor      *janitor
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Close stops the revocation sweeper and the challenge janitor, then flushes
// the audit dispatcher. It does not close injected stores.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	e.janitor.close()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate resolves a bearer token to its claims. The revocation check
// runs first and the signature and expiry check second; either failing
// rejects the token.
func (e *Engine) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	if e == nil || e.jwtManager == nil || e.revocations == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	revoked, err := e.revocations.IsRevoked(ctx, token)
	if err != nil {
		e.logger.ErrorContext(ctx, "revocation check failed", slog.Any("error", err))
		e.emitAudit(ctx, auditEventRevocationCheckFailure, false, "", err, nil)
		return nil, wrap(ErrTokenInvalid, err)
	}
	if revoked {
		e.metricInc(MetricTokenRevoked)
		return nil, ErrTokenRevoked
	}

	claims, err := e.jwtManager.Validate(token)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		return nil, wrap(ErrTokenInvalid, err)
	}
	return claims, nil
}

// issueToken mints a session token and stamps the last login time. A failed
// stamp is logged and does not fail the login.
func (e *Engine) issueToken(ctx context.Context, acct *Account) (*LoginResult, error) {
	token, claims, err := e.jwtManager.Issue(acct.Email)
	if err != nil {
		return nil, err
	}

	at := e.now().UTC()
	acct.LastLoginAt = &at
	if _, err := e.save(ctx, acct); err != nil {
		e.logger.WarnContext(ctx, "last login update failed",
			slog.String("email", acct.Email), slog.Any("error", err))
	}

	return &LoginResult{
		State:          StateAuthenticated,
		Token:          token,
		TokenExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (e *Engine) find(ctx context.Context, email string) (*Account, error) {
	acct, err := e.accounts.FindByIdentifier(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

func (e *Engine) save(ctx context.Context, acct *Account) (*Account, error) {
	acct.UpdatedAt = e.now().UTC()
	saved, err := e.accounts.Save(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	if saved == nil {
		return acct, nil
	}
	return saved, nil
}

// codeError collapses challenge failures into ErrInvalidOrExpiredCode while
// keeping the precise cause reachable through errors.Is.
func codeError(err error) error {
	switch {
	case errors.Is(err, challenge.ErrChallengeNotFound),
		errors.Is(err, challenge.ErrChallengeExpired),
		errors.Is(err, challenge.ErrCodeMismatch):
		return wrap(ErrInvalidOrExpiredCode, err)
	case errors.Is(err, challenge.ErrDelivery),
		errors.Is(err, challenge.ErrNoSender):
		return wrap(ErrDeliveryFailure, err)
	default:
		return err
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
