// Package auth implements the access control gate: session tokens,
// hashed API keys, role permissions and request rate limiting.
package auth

// Role is the coarse access level attached to a credential.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RolePartner Role = "partner"
)

// Permission names one allowed action.
type Permission string

const (
	PermLinksRead       Permission = "links:read"
	PermStatsRead       Permission = "stats:read"
	PermStreamSubscribe Permission = "stream:subscribe"
	PermKeysManage      Permission = "keys:manage"
)

// rolePermissions is the fixed role to permission-set table consulted when
// a credential carries no explicit permission list. Administrators are
// resolved before this table and hold every permission.
var rolePermissions = map[Role][]Permission{
	RoleAnalyst: {PermLinksRead, PermStatsRead, PermStreamSubscribe},
	RolePartner: {PermLinksRead, PermStreamSubscribe},
}

// ValidRole reports whether the role is one the gate knows.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RolePartner:
		return true
	}
	return false
}

// Identity is the resolved principal behind a verified credential.
type Identity struct {
	UserID string
	Email  string
	Role   Role
	// Permissions, when non-empty, overrides the role table.
	Permissions []Permission
}

// HasPermission resolves effective permission: administrators hold all
// permissions, an explicit list wins over the role table, otherwise the
// fixed table decides.
func (id *Identity) HasPermission(p Permission) bool {
	if id.Role == RoleAdmin {
		return true
	}
	if len(id.Permissions) > 0 {
		for _, have := range id.Permissions {
			if have == p {
				return true
			}
		}
		return false
	}
	for _, have := range rolePermissions[id.Role] {
		if have == p {
			return true
		}
	}
	return false
}
