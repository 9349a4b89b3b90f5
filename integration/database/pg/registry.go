package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/certificate"
)

var _ certificate.IssuedRegistry = (*IssuedRegistry)(nil)

// IssuedRegistry is the shared, PII-free hash index behind the public
// verification surface. Only the engine writes to it.
type IssuedRegistry struct {
	pool *pgxpool.Pool
}

func NewIssuedRegistry(pool *pgxpool.Pool) (*IssuedRegistry, error) {
	if pool == nil {
		return nil, errors.New("pg: pool cannot be nil")
	}
	return &IssuedRegistry{pool: pool}, nil
}

func (r *IssuedRegistry) Record(ctx context.Context, rec certificate.IssuedRecord) error {
	if _, err := queryTarget(ctx, r.pool).Exec(ctx, `
		INSERT INTO shared.issued_registry
			(hash, algorithm, certificate_id, number, tenant_namespace, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO NOTHING`,
		rec.Hash, rec.Algorithm, rec.CertificateID, rec.Number, rec.Namespace, rec.IssuedAt); err != nil {
		return fmt.Errorf("insert issued registry row: %w", err)
	}
	return nil
}

func (r *IssuedRegistry) FindByHash(ctx context.Context, hashValue string) (certificate.IssuedRecord, error) {
	var rec certificate.IssuedRecord
	err := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT hash, algorithm, certificate_id, number, tenant_namespace, issued_at
		FROM shared.issued_registry
		WHERE hash = $1`, hashValue,
	).Scan(&rec.Hash, &rec.Algorithm, &rec.CertificateID, &rec.Number, &rec.Namespace, &rec.IssuedAt)
	if err != nil {
		if IsNotFoundError(err) {
			return certificate.IssuedRecord{}, certificate.ErrHashRecordNotFound
		}
		return certificate.IssuedRecord{}, fmt.Errorf("select issued registry row: %w", err)
	}
	return rec, nil
}

func (r *IssuedRegistry) FindByCertificate(ctx context.Context, certID uuid.UUID) (certificate.IssuedRecord, error) {
	var rec certificate.IssuedRecord
	err := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT hash, algorithm, certificate_id, number, tenant_namespace, issued_at
		FROM shared.issued_registry
		WHERE certificate_id = $1`, certID,
	).Scan(&rec.Hash, &rec.Algorithm, &rec.CertificateID, &rec.Number, &rec.Namespace, &rec.IssuedAt)
	if err != nil {
		if IsNotFoundError(err) {
			return certificate.IssuedRecord{}, certificate.ErrHashRecordNotFound
		}
		return certificate.IssuedRecord{}, fmt.Errorf("select issued registry row: %w", err)
	}
	return rec, nil
}

func (r *IssuedRegistry) Remove(ctx context.Context, certID uuid.UUID) error {
	if _, err := queryTarget(ctx, r.pool).Exec(ctx,
		`DELETE FROM shared.issued_registry WHERE certificate_id = $1`, certID); err != nil {
		return fmt.Errorf("delete issued registry row: %w", err)
	}
	return nil
}
