package domain

// Role is the resolved access level of a user within a guild.
type Role string

const (
	RoleNone  Role = "NONE"
	RoleStaff Role = "STAFF"
	RoleAdmin Role = "ADMIN"
)

// AtLeastStaff reports whether the role grants staff-level access.
// Admin implies staff for access gating.
func (r Role) AtLeastStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}
