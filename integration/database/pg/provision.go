package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/tenant"
)

// ProvisionTenantSchema creates the per-tenant schema and its tables for a
// new tenant. Idempotent; safe to run on every tenant activation.
func ProvisionTenantSchema(ctx context.Context, pool *pgxpool.Pool, ns tenant.Namespace) error {
	schema, err := schemaIdent(ns)
	if err != nil {
		return err
	}

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.template_versions (
			id            uuid PRIMARY KEY,
			code          text NOT NULL,
			state         text NOT NULL,
			markup        text NOT NULL,
			style         text NOT NULL DEFAULT '',
			field_schema  jsonb,
			created_at    timestamptz NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.certificates (
			id                  uuid PRIMARY KEY,
			number              text NOT NULL,
			template_version_id uuid NOT NULL REFERENCES %s.template_versions (id),
			recipient_data      jsonb NOT NULL,
			metadata            jsonb,
			status              text NOT NULL,
			storage_path        text NOT NULL DEFAULT '',
			hash                text NOT NULL DEFAULT '',
			hash_algorithm      text NOT NULL DEFAULT '',
			issued_by           text NOT NULL DEFAULT '',
			created_at          timestamptz NOT NULL,
			issued_at           timestamptz,
			expires_at          timestamptz
		)`, schema, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS certificates_status_idx
			ON %s.certificates (status, created_at)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.certificate_hashes (
			certificate_id uuid PRIMARY KEY REFERENCES %s.certificates (id) ON DELETE CASCADE,
			algorithm      text NOT NULL,
			value          text NOT NULL,
			created_at     timestamptz NOT NULL
		)`, schema, schema),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("provision schema for %q: %w", ns, err)
		}
	}
	return nil
}
