package authcore

import (
	"fmt"
	"strings"

	"github.com/medforge/authcore/otp"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxEmailLength    = 254
	maxNameLength     = 200
)

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrMalformedInput)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: email too long", ErrMalformedInput)
	}
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 {
		return fmt.Errorf("%w: email is not a valid address", ErrMalformedInput)
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("%w: email is not a valid address", ErrMalformedInput)
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, minPasswordLength)
	}
	if len(pw) > maxPasswordLength {
		return fmt.Errorf("%w: maximum %d characters", ErrWeakPassword, maxPasswordLength)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrMalformedInput)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name too long", ErrMalformedInput)
	}
	return nil
}

func validateCode(code string) error {
	if !otp.ValidCode(code) {
		return fmt.Errorf("%w: code must be %d digits", ErrMalformedInput, otp.CodeLength)
	}
	return nil
}
