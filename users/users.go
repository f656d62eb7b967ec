package users

import (
	"errors"
	"slices"
	"sort"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Role names used by the demo server and the default permission table.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleViewer     = "viewer"
)

// TenantMembership holds a user's roles within one tenant.
type TenantMembership struct {
	TenantID string    `json:"tenant_id"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

type User struct {
	ID          string             `json:"id,omitempty"`
	Email       string             `json:"email,omitempty"`
	SystemRoles []string           `json:"system_roles,omitempty"` // Roles that apply in every tenant
	Tenants     []TenantMembership `json:"tenants,omitempty"`
	Verified    bool               `json:"verified,omitempty"` // Email address verified
	Blocked     bool               `json:"blocked,omitempty"`
}

func (u *User) HasTenant(tenantID string) bool {
	if tenantID == "" {
		return true
	}
	return u.GetTenantMembership(tenantID) != nil
}

// IsSuperAdmin returns true if the user has super admin privileges
func (u *User) IsSuperAdmin() bool {
	return slices.Contains(u.SystemRoles, RoleSuperAdmin)
}

// GetTenantMembership returns the user's membership for a specific tenant
func (u *User) GetTenantMembership(tenantID string) *TenantMembership {
	for i := range u.Tenants {
		if u.Tenants[i].TenantID == tenantID {
			return &u.Tenants[i]
		}
	}
	return nil
}

// GetRolesForTenant returns the system roles plus the tenant roles, sorted and
// without duplicates.
func (u *User) GetRolesForTenant(tenantID string) []string {
	roles := append([]string{}, u.SystemRoles...)
	if m := u.GetTenantMembership(tenantID); m != nil {
		roles = append(roles, m.Roles...)
	}
	sort.Strings(roles)
	return slices.Compact(roles)
}

// HasTenantRole checks if the user has a specific role within a tenant
func (u *User) HasTenantRole(tenantID, role string) bool {
	return slices.Contains(u.GetRolesForTenant(tenantID), role)
}

// RolePermissions maps a role to the permissions it grants.
type RolePermissions map[string][]string

// DefaultRolePermissions is the permission table used when none is configured.
var DefaultRolePermissions = RolePermissions{
	RoleSuperAdmin: {"sessions:read", "sessions:revoke", "users:read", "users:write"},
	RoleAdmin:      {"sessions:read", "sessions:revoke", "users:read"},
	RoleUser:       {"profile:read", "profile:write"},
	RoleViewer:     {"profile:read"},
}

// PermissionsFor returns the union of the permissions granted by roles,
// sorted and without duplicates.
func (rp RolePermissions) PermissionsFor(roles []string) []string {
	perms := []string{}
	for _, role := range roles {
		perms = append(perms, rp[role]...)
	}
	sort.Strings(perms)
	return slices.Compact(perms)
}
