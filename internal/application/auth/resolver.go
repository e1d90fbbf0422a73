package auth

import (
	"regexp"
	"strings"
)

// Intended-role results of resolveIntendedRole.
const (
	intentTester       = "tester"
	intentUser         = "user"
	intentUnauthorized = "unauthorized"
)

// denylistedDomains is shared between signup's hard reject and the resolver's
// own denylist branch so the two checks cannot drift apart.
var denylistedDomains = []string{"proton.me", "protonmail.com"}

// personalProviders are consumer mail domains that always map to the user role.
var personalProviders = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"icloud.com":  true,
	"aol.com":     true,
	"live.com":    true,
	"msn.com":     true,
}

// emailShapeRE accepts the generic local@domain.tld shape.
var emailShapeRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-zA-Z]{2,}$`)

// resolveIntendedRole maps an email address to the account role its domain
// implies. Only signup consults it; login and the OTP flows discover the role
// from whichever collection holds a matching record.
func resolveIntendedRole(email, testerDomain string) string {
	dom := emailDomain(email)
	switch {
	case dom == strings.ToLower(testerDomain):
		return intentTester
	case domainDenylisted(email):
		return intentUnauthorized
	case personalProviders[dom]:
		return intentUser
	case emailShapeRE.MatchString(email):
		return intentUser
	default:
		return intentUnauthorized
	}
}

// domainDenylisted reports whether the email's domain is explicitly banned
// from signing up.
func domainDenylisted(email string) bool {
	dom := emailDomain(email)
	for _, d := range denylistedDomains {
		if dom == d {
			return true
		}
	}
	return false
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
