package magiclink

import "strings"

// UserRole is the user's role. The model is two-tier: everyone is standard
// unless the allow-list says otherwise.
type UserRole string

const (
	// RoleStandard is the default role for any verified identity.
	RoleStandard UserRole = "standard"
	// RoleAdmin is granted only to allow-listed addresses or domains.
	RoleAdmin UserRole = "administrator"
)

// IsValid checks if the role is one of the predefined valid roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleStandard, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants administrative access.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ParseRole safely parses a string into a UserRole type.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}

// RoleResolver derives a role from an email against a configured allow-list.
// Resolution is a pure function of the normalized address; the same resolver
// instance must be shared by issuance and verification so the two can never
// drift.
type RoleResolver struct {
	addresses map[string]struct{}
	domains   []string
}

// NewRoleResolver builds a resolver from allow-list entries. Entries
// containing "@" followed by a local part ("ops@example.com") match that
// exact address; entries with a leading "@" or a bare domain
// ("@example.com", "example.com") match every address on the domain.
func NewRoleResolver(allowList []string) *RoleResolver {
	r := &RoleResolver{
		addresses: map[string]struct{}{},
	}
	for _, entry := range allowList {
		entry = NormalizeEmail(entry)
		if entry == "" {
			continue
		}
		switch {
		case strings.HasPrefix(entry, "@"):
			r.domains = append(r.domains, strings.TrimPrefix(entry, "@"))
		case strings.Contains(entry, "@"):
			r.addresses[entry] = struct{}{}
		default:
			r.domains = append(r.domains, entry)
		}
	}
	return r
}

// Resolve returns RoleAdmin when the normalized email matches the
// allow-list, RoleStandard otherwise. Deterministic, no side effects.
func (r *RoleResolver) Resolve(email string) UserRole {
	if r == nil {
		return RoleStandard
	}

	email = NormalizeEmail(email)
	if _, ok := r.addresses[email]; ok {
		return RoleAdmin
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return RoleStandard
	}

	domain := email[at+1:]
	for _, d := range r.domains {
		if domain == d {
			return RoleAdmin
		}
	}

	return RoleStandard
}
