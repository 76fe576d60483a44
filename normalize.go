package magiclink

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lower-cases and trims an address. Idempotent: normalizing
// an already normalized value is a no-op.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address parses as local@domain.tld. The
// check is syntactic only; deliverability is the Mailer's problem.
func ValidEmail(email string) bool {
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return false
	}

	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
