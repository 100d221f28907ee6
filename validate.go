package goOTP

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxEmailLength    = 254
	maxNameLength     = 64
	minUsernameLength = 3
	maxUsernameLength = 64
)

func validateEmail(email string) error {
	if err := validation.Validate(email,
		validation.Required,
		validation.Length(3, maxEmailLength),
		is.Email,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return nil
}

func (e *Engine) validatePassword(plain string) error {
	if err := validation.Validate(plain,
		validation.Required,
		validation.RuneLength(e.config.Password.MinLength, e.config.Password.MaxLength),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return nil
}

// validateSignup checks every field and reports the most specific sentinel.
// Field errors are keyed by JSON name and never echo submitted values.
func (e *Engine) validateSignup(req *SignupRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&req.FirstName, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&req.LastName, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&req.Password, validation.Required, validation.RuneLength(e.config.Password.MinLength, e.config.Password.MaxLength)),
	)
	if err == nil {
		return nil
	}

	fields, ok := err.(validation.Errors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	switch {
	case fields["email"] != nil:
		return fmt.Errorf("%w: %v", ErrInvalidEmail, fields)
	case fields["password"] != nil:
		return fmt.Errorf("%w: %v", ErrInvalidPassword, fields)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidProfile, fields)
	}
}

func validateUsername(username string) error {
	if err := validation.Validate(username,
		validation.Required,
		validation.RuneLength(minUsernameLength, maxUsernameLength),
		is.PrintableASCII,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}
