package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/tenant"
)

var _ tenant.Directory = (*Directory)(nil)

// Directory resolves tenant namespaces from the shared tenants table.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) (*Directory, error) {
	if pool == nil {
		return nil, errors.New("pg: pool cannot be nil")
	}
	return &Directory{pool: pool}, nil
}

func (d *Directory) Lookup(ctx context.Context, ns tenant.Namespace) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := queryTarget(ctx, d.pool).QueryRow(ctx, `
		SELECT namespace, name, active, monthly_certificate_cap
		FROM shared.tenants
		WHERE namespace = $1`, ns,
	).Scan(&t.Namespace, &t.Name, &t.Active, &t.MonthlyCertificateCap)
	if err != nil {
		if IsNotFoundError(err) {
			return tenant.Tenant{}, tenant.ErrTenantNotFound
		}
		return tenant.Tenant{}, fmt.Errorf("select tenant: %w", err)
	}
	return t, nil
}
