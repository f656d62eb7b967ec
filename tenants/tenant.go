package tenants

import "errors"

// DefaultTenantID is the tenant sessions belong to when none is given.
const DefaultTenantID = "public"

var ErrNotFound = errors.New("tenant not found")

// Tenant is an isolated group of users. Sessions are always bound to one
// tenant.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Issuer   string `json:"issuer"`   // "iss" claim of access tokens issued for this tenant
	Disabled bool   `json:"disabled"` // Disabled tenants cannot create or refresh sessions
}
