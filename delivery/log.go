package delivery

import (
	"context"
	"log/slog"
)

// LogEmailSender writes codes to a logger instead of sending mail. It is meant
// for development and tests; codes appear in clear text in the log.
type LogEmailSender struct {
	Logger *slog.Logger
}

func (s LogEmailSender) Deliver(ctx context.Context, address, code string, purpose Purpose) error {
	if address == "" {
		return ErrNoRecipient
	}
	logger(s.Logger).InfoContext(ctx, "email code issued",
		slog.String("to", address),
		slog.String("subject", subject(purpose)),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
	)
	return nil
}

// LogSMSSender is the SMS counterpart of LogEmailSender.
type LogSMSSender struct {
	Logger *slog.Logger
}

func (s LogSMSSender) Deliver(ctx context.Context, phone, code string, purpose Purpose) error {
	if phone == "" {
		return ErrNoRecipient
	}
	logger(s.Logger).InfoContext(ctx, "sms code issued",
		slog.String("to", phone),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
	)
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
