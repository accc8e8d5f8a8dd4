package delivery

import (
	"context"
	"errors"
)

// Purpose tells the recipient why a code was sent.
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeLogin        Purpose = "login"
)

// ErrNoRecipient is returned when the address or phone number is empty.
var ErrNoRecipient = errors.New("delivery: no recipient")

// EmailSender delivers a one-time code to an email address.
type EmailSender interface {
	Deliver(ctx context.Context, address, code string, purpose Purpose) error
}

// SMSSender delivers a one-time code to an E.164 phone number.
type SMSSender interface {
	Deliver(ctx context.Context, phone, code string, purpose Purpose) error
}

// EmailFunc adapts a function to EmailSender.
type EmailFunc func(ctx context.Context, address, code string, purpose Purpose) error

func (f EmailFunc) Deliver(ctx context.Context, address, code string, purpose Purpose) error {
	return f(ctx, address, code, purpose)
}

// SMSFunc adapts a function to SMSSender.
type SMSFunc func(ctx context.Context, phone, code string, purpose Purpose) error

func (f SMSFunc) Deliver(ctx context.Context, phone, code string, purpose Purpose) error {
	return f(ctx, phone, code, purpose)
}

func subject(purpose Purpose) string {
	if purpose == PurposeLogin {
		return "Your sign-in code"
	}
	return "Verify your email address"
}

func body(code string, purpose Purpose) string {
	if purpose == PurposeLogin {
		return "Your sign-in code is " + code + ". If you did not try to sign in, change your password."
	}
	return "Your verification code is " + code + "."
}
