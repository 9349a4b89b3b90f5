package tenant

import "context"

// Tenant is the directory's view of a tenant: activation state and resource
// quotas only. Everything else about tenants lives outside this system.
type Tenant struct {
	Namespace             Namespace
	Name                  string
	Active                bool
	MonthlyCertificateCap int // 0 means unlimited
}

// Directory resolves a namespace to its tenant record. Implementations wrap
// the external tenant service or the shared tenants table.
type Directory interface {
	// Lookup returns ErrTenantNotFound when the namespace is unknown.
	Lookup(ctx context.Context, ns Namespace) (Tenant, error)
}

// Resolve looks up the namespace and rejects inactive tenants. It is the
// shared entry check for both the synchronous path and the queue consumer.
func Resolve(ctx context.Context, dir Directory, ns Namespace) (Tenant, error) {
	t, err := dir.Lookup(ctx, ns)
	if err != nil {
		return Tenant{}, err
	}
	if !t.Active {
		return Tenant{}, ErrTenantInactive
	}
	return t, nil
}
