package auth

// Role is the closed set of account roles.
type Role int

const (
	RoleAdmin Role = iota + 1
	RoleUser
)

// String returns the canonical lowercase name used in JSON and in token claims.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return ""
	}
}

// ParseRole matches s exactly (case-sensitive) against the canonical names.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "admin":
		return RoleAdmin, true
	case "user":
		return RoleUser, true
	default:
		return 0, false
	}
}

// IsValidRole reports whether s names a known role.
func IsValidRole(s string) bool {
	_, ok := ParseRole(s)
	return ok
}
