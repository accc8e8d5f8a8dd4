package twostep

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxEmailLength    = 254
	maxPasswordLength = 128
	maxNameLength     = 100
)

var twoFactorMethods = []interface{}{
	TwoFactorNone,
	TwoFactorEmail,
	TwoFactorAuthenticatorApp,
	TwoFactorSMS,
}

func equalTo(other string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != other {
			return errors.New("values must match")
		}
		return nil
	}
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return wrap(ErrValidation, err)
}

func (e *Engine) validateSignup(r SignupRequest) error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(e.config.Password.MinLength, maxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(equalTo(r.Password))),
		validation.Field(&r.FirstName, validation.Length(0, maxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, maxNameLength)),
		validation.Field(&r.TwoFactorMethod, validation.In(twoFactorMethods...)),
	))
}

type credentialsInput struct {
	Email    string
	Password string
}

func validateCredentials(email, password string) error {
	in := credentialsInput{Email: email, Password: password}
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(0, maxEmailLength)),
		validation.Field(&in.Password, validation.Required, validation.Length(0, maxPasswordLength)),
	))
}

type passwordChangeInput struct {
	Current string
	Next    string
	Confirm string
}

func (e *Engine) validatePasswordChange(current, next, confirm string) error {
	in := passwordChangeInput{Current: current, Next: next, Confirm: confirm}
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Current, validation.Required),
		validation.Field(&in.Next, validation.Required, validation.Length(e.config.Password.MinLength, maxPasswordLength)),
		validation.Field(&in.Confirm, validation.Required, validation.By(equalTo(next))),
	))
}

func validateTwoFactorChange(r ChangeTwoFactorRequest) error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Method, validation.Required, validation.In(twoFactorMethods...)),
	))
}

type codeInput struct {
	Subject string
	Code    string
}

// validateCode checks the shape of a submitted code; subject is an email
// or a challenge ID.
func validateCode(subject, code string) error {
	in := codeInput{Subject: subject, Code: code}
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Subject, validation.Required),
		validation.Field(&in.Code, validation.Required, validation.Length(4, 10), is.Digit),
	))
}
