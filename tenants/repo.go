package tenants

import "github.com/pkg/errors"

// ErrUnavailable is returned by Resolve for unknown and disabled tenants.
var ErrUnavailable = errors.New("unknown or disabled tenant")

type Repo interface {
	Upsert(tenantData *Tenant) error
	Delete(tenantID string) error
	Get(tenantID string) (*Tenant, error)
	List(offset, limit int) ([]*Tenant, error)
}

// Resolve loads the tenant a session belongs to. An empty ID resolves to
// DefaultTenantID.
func Resolve(repo Repo, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	t, err := repo.Get(tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(ErrUnavailable, tenantID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[tenants.Resolve] Get")
	}
	if t.Disabled {
		return nil, errors.Wrap(ErrUnavailable, tenantID)
	}
	return t, nil
}

// IssuerOr returns the tenant's issuer, or fallback when it has none.
func (t *Tenant) IssuerOr(fallback string) string {
	if t != nil && t.Issuer != "" {
		return t.Issuer
	}
	return fallback
}
