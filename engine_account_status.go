package twostep

import (
	"context"
	"fmt"
)

// SetAccountStatus moves an account between ACTIVE, INACTIVE and SUSPENDED.
// Only ACTIVE accounts can log in; tokens already issued stay valid until
// they expire or are logged out.
func (e *Engine) SetAccountStatus(ctx context.Context, email string, status AccountStatus) error {
	err := e.updateAccountStatus(ctx, email, status)
	if err == nil {
		e.metricInc(MetricAccountStatusChange)
	}
	e.emitAudit(ctx, auditEventAccountStatusChange, err == nil, normalizeEmail(email), err, func() map[string]string {
		return map[string]string{
			"status": string(status),
		}
	})
	return err
}

func (e *Engine) updateAccountStatus(ctx context.Context, email string, status AccountStatus) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if !status.Valid() {
		return wrap(ErrValidation, fmt.Errorf("unknown account status %q", status))
	}

	acct, err := e.find(ctx, email)
	if err != nil {
		return err
	}
	if acct.Status == status {
		return nil
	}
	acct.Status = status
	_, err = e.save(ctx, acct)
	return err
}
