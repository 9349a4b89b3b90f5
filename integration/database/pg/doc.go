// Package pg provides PostgreSQL connection management and the
// schema-per-tenant persistence layer.
//
// Tenant data (certificates, hashes, template versions) lives in one schema
// per tenant, named after the tenant namespace. Every query is
// schema-qualified per operation; the connection's search_path is never
// mutated, so pooled connections cannot leak a tenant between requests.
// Shared infrastructure (the tenant directory, the issued registry, the
// deployment-wide certificate number index, and the dispatch job tables)
// lives in the "shared" schema.
//
// Connect creates a pgxpool with retry logic and verifies connectivity
// before returning. Healthcheck returns a probe function for readiness
// endpoints.
//
// WithTx and TxFromContext propagate a pgx.Tx through context so
// repositories participate in an enclosing transaction when one exists and
// fall back to the pool otherwise.
package pg
