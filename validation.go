package auth

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	MobileLength = 10
	CodeLength   = 6
)

// ASCII digits only. is.Digit accepts any unicode digit.
var (
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
	codePattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidateMobile checks a citizen mobile number locally.
func ValidateMobile(mobile string) error {
	err := validation.Validate(mobile,
		validation.Required,
		validation.Length(MobileLength, MobileLength),
		validation.Match(mobilePattern),
	)
	if err != nil {
		return NewValidationError(TextCodeInvalidMobile, "Please enter a valid 10-digit mobile number")
	}
	return nil
}

// ValidateCode checks a one time code locally.
func ValidateCode(code string) error {
	err := validation.Validate(code,
		validation.Required,
		validation.Length(CodeLength, CodeLength),
		validation.Match(codePattern),
	)
	if err != nil {
		return NewValidationError(TextCodeInvalidCode, "Please enter the 6-digit OTP")
	}
	return nil
}

// ValidateFullName checks the registration name after trimming.
func ValidateFullName(fullName string) error {
	if err := validation.Validate(strings.TrimSpace(fullName), validation.Required); err != nil {
		return NewValidationError(TextCodeNameRequired, "Please enter your full name")
	}
	return nil
}

type adminCredentials struct {
	Username string
	Password string
}

func (c adminCredentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// ValidateAdminCredentials checks that both fields are present.
func ValidateAdminCredentials(username, password string) error {
	creds := adminCredentials{Username: strings.TrimSpace(username), Password: password}
	if err := creds.Validate(); err != nil {
		return NewValidationError(TextCodeCredentialsRequired, "Please enter username and password")
	}
	return nil
}
