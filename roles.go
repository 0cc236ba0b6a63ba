package auth

// Role is the staff role carried by an AdminIdentity
type Role string

const (
	// RoleOfficer handles requests and grievances
	RoleOfficer Role = "officer"
	// RoleAdmin manages the portal
	RoleAdmin Role = "admin"
	// RoleSuperAdmin manages admins
	RoleSuperAdmin Role = "superadmin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOfficer, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleOfficer:    0,
		RoleAdmin:      1,
		RoleSuperAdmin: 2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// In reports whether the role is part of the given set
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// GetAllRoles returns all staff roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleOfficer,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
