package domain

import "fmt"

// Role is the closed set of user roles. Handlers never compare raw role
// strings; they go through Allows so permission logic lives in one place.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a stored or submitted role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Permission names an action category a handler can gate on. The same
// categories key the per-action rate-limit quotas.
type Permission string

const (
	PermQRManage   Permission = "qr:manage"
	PermProfile    Permission = "profile:read"
	PermAdminRead  Permission = "admin:read"
	PermAdminWrite Permission = "admin:write"
)

var rolePermissions = map[Role]map[Permission]struct{}{
	RoleUser: {
		PermQRManage: {},
		PermProfile:  {},
	},
	RoleAdmin: {
		PermQRManage:   {},
		PermProfile:    {},
		PermAdminRead:  {},
		PermAdminWrite: {},
	},
}

// Allows is the single authorization decision for the whole service.
func (r Role) Allows(p Permission) bool {
	perms, ok := rolePermissions[r]
	if !ok {
		return false
	}
	_, ok = perms[p]
	return ok
}
