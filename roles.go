package household

// Role is the access control dimension of a household member
type Role string

const (
	// RoleFamily is the household administrator role
	RoleFamily Role = "family"
	// RoleRoommate shares bills and tasks
	RoleRoommate Role = "roommate"
	// RoleNanny sees childcare information
	RoleNanny Role = "nanny"
	// RoleChild has a restricted view of chores, notes and appreciation
	RoleChild Role = "child"
	// RoleGuest is a locally synthesized visitor with minimal privileges
	RoleGuest Role = "guest"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleFamily, RoleRoommate, RoleNanny, RoleChild, RoleGuest:
		return true
	default:
		return false
	}
}

// IsGuest reports whether the role is the local guest role
func (r Role) IsGuest() bool {
	return r == RoleGuest
}

// IsHouseholdAdmin reports whether the role administers household records
func (r Role) IsHouseholdAdmin() bool {
	return r == RoleFamily
}

// IsMember reports whether the role belongs to a persisted household member
func (r Role) IsMember() bool {
	return r.IsValid() && !r.IsGuest()
}

func (r Role) String() string {
	return string(r)
}

// AllRoles returns every role, members first
func AllRoles() []Role {
	return []Role{
		RoleFamily,
		RoleRoommate,
		RoleNanny,
		RoleChild,
		RoleGuest,
	}
}

// MemberRoles returns the roles that can be persisted for a household member
func MemberRoles() []Role {
	return []Role{
		RoleFamily,
		RoleRoommate,
		RoleNanny,
		RoleChild,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// RoleSet is an ordered set of roles
type RoleSet []Role

// NewRoleSet builds a set dropping invalid and duplicated roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, 0, len(roles))
	for _, role := range roles {
		if !role.IsValid() || set.Contains(role) {
			continue
		}
		set = append(set, role)
	}
	return set
}

// Contains reports whether role is in the set
func (s RoleSet) Contains(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Strings returns the roles as plain strings
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
