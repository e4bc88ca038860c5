package service

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator with the account policy tags
// registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("username", validateUsername)
		_ = validate.RegisterValidation("strongpassword", validateStrongPassword)
	})
	return validate
}

// validateUsername checks 3-64 characters from [A-Za-z0-9_.-]
func validateUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// validateStrongPassword checks at least 8 characters with an upper-case
// letter, a lower-case letter and a digit
func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// ValidUsername reports whether username matches the account name policy.
func ValidUsername(username string) bool {
	return getValidator().Var(username, "username") == nil
}

// StrongPassword reports whether password satisfies the strength policy.
func StrongPassword(password string) bool {
	return getValidator().Var(password, "strongpassword") == nil
}
