package password

import (
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Count characters (runes), not bytes, to be user-friendly.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength || len(password) > bcryptMaxInputBytes {
		return ErrPasswordTooLong
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if c.Policy.RequireLower && !hasLower {
		return ErrWeakPassword
	}
	if c.Policy.RequireUpper && !hasUpper {
		return ErrWeakPassword
	}
	if c.Policy.RequireDigit && !hasDigit {
		return ErrWeakPassword
	}
	if c.Policy.RequireSymbol && !hasSymbol {
		return ErrWeakPassword
	}

	return nil
}
