// Package validation checks request payloads before they reach the services.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinNameLen     = 3
	MaxNameLen     = 100
	MinPasswordLen = 8
	MaxPasswordLen = 30
)

var (
	passwordPattern  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	uppercasePattern = regexp.MustCompile(`[A-Z]`)
)

// PasswordPolicyMessage is reported for any password that fails the signup policy.
// The text overstates the policy: lowercase letters and digits are allowed but not
// required. Clients match on this exact wording, so it is kept as is.
const PasswordPolicyMessage = "Password must be at least 8 characters long and contain at least one uppercase letter, one lowercase letter and one number"

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a list of field errors; a nil Errors means the payload is valid.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}

func (e *Errors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Result returns nil for an empty list so callers can compare against nil.
func (e Errors) Result() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidateSignup checks the signup form.
func ValidateSignup(name, email, password string) error {
	var errs Errors
	switch n := utf8.RuneCountInString(strings.TrimSpace(name)); {
	case n == 0:
		errs.add("name", "name is required")
	case n < MinNameLen:
		errs.add("name", fmt.Sprintf("name must be at least %d characters long", MinNameLen))
	case n > MaxNameLen:
		errs.add("name", fmt.Sprintf("name must not exceed %d characters", MaxNameLen))
	}
	if msg := checkEmail(email); msg != "" {
		errs.add("email", msg)
	}
	if msg := checkPasswordPolicy(password); msg != "" {
		errs.add("password", msg)
	}
	return errs.Result()
}

// ValidateSignin only requires a valid email and a non-empty password.
func ValidateSignin(email, password string) error {
	var errs Errors
	if msg := checkEmail(email); msg != "" {
		errs.add("email", msg)
	}
	if password == "" {
		errs.add("password", "password is required")
	}
	return errs.Result()
}

// ValidatePasswordChange requires all fields and applies the signup policy to the new password.
func ValidatePasswordChange(oldPassword, newPassword, confirmPassword string) error {
	var errs Errors
	if oldPassword == "" {
		errs.add("oldPassword", "oldPassword is required")
	}
	if msg := checkPasswordPolicy(newPassword); msg != "" {
		errs.add("newPassword", msg)
	}
	if confirmPassword == "" {
		errs.add("confirmPassword", "confirmPassword is required")
	}
	return errs.Result()
}

// ValidateEmail reports whether email is a bare RFC 5322 address.
func ValidateEmail(email string) bool {
	return checkEmail(email) == ""
}

func checkEmail(email string) string {
	if strings.TrimSpace(email) == "" {
		return "email is required"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "email must be a valid email"
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "email must be a valid email"
	}
	return ""
}

func checkPasswordPolicy(password string) string {
	if password == "" {
		return "password is required"
	}
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return PasswordPolicyMessage
	}
	if !passwordPattern.MatchString(password) || !uppercasePattern.MatchString(password) {
		return PasswordPolicyMessage
	}
	return ""
}
