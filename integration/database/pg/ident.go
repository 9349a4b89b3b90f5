package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/tenant"
)

// sharedSchema holds deployment-wide tables: the tenant directory, the
// issued registry, the certificate number index, and the dispatch queue.
const sharedSchema = "shared"

// schemaIdent returns the quoted schema identifier for a tenant namespace.
// The namespace is re-validated even though tenant.WithNamespace already
// checked it: identifiers are spliced into SQL text and must never pass
// through unvalidated.
func schemaIdent(ns tenant.Namespace) (string, error) {
	if err := ns.Validate(); err != nil {
		return "", err
	}
	return pgx.Identifier{string(ns)}.Sanitize(), nil
}

// schemaFromContext resolves the active tenant namespace into a quoted
// schema identifier.
func schemaFromContext(ctx context.Context) (string, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	return schemaIdent(ns)
}

// querier is the query surface shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queryTarget returns the transaction from the context when one exists,
// otherwise the pool.
func queryTarget(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}
