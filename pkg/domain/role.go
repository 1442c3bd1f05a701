package domain

// Role is a user's privilege level within a group.
// This is a domain primitive: stored values are validated at parse time and
// anything unrecognized degrades to RoleNone rather than being trusted.
type Role string

const (
	RoleNone   Role = "none"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

var validRoles = map[Role]bool{
	RoleNone:   true,
	RoleMember: true,
	RoleAdmin:  true,
}

// ParseRole validates a stored role string. Unrecognized values fall back to
// RoleNone with ok=false so callers can distinguish a genuine cache entry
// from a corrupt one.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if !validRoles[r] {
		return RoleNone, false
	}
	return r, true
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
