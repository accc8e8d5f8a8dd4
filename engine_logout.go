package twostep

import (
	"context"
	"log/slog"
)

// Logout revokes a token that still passes signature and expiry checks.
// It always returns nil: a malformed or expired token needs no revoking and a
// store failure is logged and audited instead of surfaced.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.jwtManager == nil || e.revocations == nil {
		return nil
	}

	claims, err := e.jwtManager.Validate(token)
	if err != nil {
		e.logger.DebugContext(ctx, "logout with unusable token", slog.Any("error", err))
		e.emitAudit(ctx, auditEventLogout, false, "", wrap(ErrTokenInvalid, err), nil)
		return nil
	}

	if err := e.revocations.Revoke(ctx, token); err != nil {
		e.logger.ErrorContext(ctx, "token revocation failed",
			slog.String("subject", claims.Subject), slog.Any("error", err))
		e.emitAudit(ctx, auditEventLogout, false, claims.Subject, err, nil)
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, nil, nil)
	return nil
}
