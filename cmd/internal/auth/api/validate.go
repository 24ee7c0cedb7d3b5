package authapi

import (
	"regexp"
	"strings"

	"ptw/cmd/identity"
)

// Field-scoped login messages are constant: the response never reveals
// whether the email exists or only the password was wrong.
const (
	msgInvalidEmail    = "Please enter a valid email address."
	msgInvalidPassword = "Please enter a valid password."
)

var (
	emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	alphaRx = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]*$`)

	// Qatari numbers: +974 followed by 8 digits.
	qatarPhoneRx = regexp.MustCompile(`^\+974\d{8}$`)
)

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && len(s) <= 254 && emailRx.MatchString(s)
}

func validName(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && len(s) <= 100 && alphaRx.MatchString(s)
}

// validatePhone normalizes and checks a Qatari phone number. Accepts the
// number with or without the +974 prefix; returns the canonical +974 form.
func validatePhone(raw string) (string, bool) {
	p := identity.NormalizePhone(raw)
	if p == "" {
		return "", false
	}
	if !strings.HasPrefix(p, "+") {
		p = "+974" + p
	}
	if !qatarPhoneRx.MatchString(p) {
		return "", false
	}
	return p, true
}
