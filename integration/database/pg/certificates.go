package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/tenant"
)

var _ certificate.Repository = (*Repository)(nil)

// Repository persists certificates in the active tenant's schema. The
// deployment-wide certificate number index lives in the shared schema and is
// maintained transactionally with the tenant rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, errors.New("pg: pool cannot be nil")
	}
	return &Repository{pool: pool}, nil
}

// inTx runs fn inside the context transaction when one exists, otherwise in
// a new transaction committed on success.
func (r *Repository) inTx(ctx context.Context, fn func(q querier) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Create(ctx context.Context, cert *certificate.Certificate) error {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return err
	}

	recipientData, err := json.Marshal(cert.RecipientData)
	if err != nil {
		return fmt.Errorf("marshal recipient data: %w", err)
	}
	metadata, err := marshalMetadata(cert.Metadata)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s.certificates
				(id, number, template_version_id, recipient_data, metadata, status,
				 storage_path, hash, hash_algorithm, issued_by, created_at, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING`, schema),
			cert.ID, cert.Number, cert.TemplateVersionID, recipientData, metadata, cert.Status,
			cert.StoragePath, cert.Hash, cert.HashAlgorithm, cert.IssuedBy, cert.CreatedAt,
			cert.IssuedAt, cert.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert certificate: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil // idempotent insert
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO shared.certificate_numbers (number, certificate_id, tenant_namespace)
			VALUES ($1, $2, $3)`,
			cert.Number, cert.ID, cert.Namespace); err != nil {
			if IsDuplicateKeyError(err) {
				return certificate.ErrDuplicateCertificateNumber
			}
			return fmt.Errorf("register certificate number: %w", err)
		}
		return nil
	})
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*certificate.Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := schemaIdent(ns)
	if err != nil {
		return nil, err
	}

	row := queryTarget(ctx, r.pool).QueryRow(ctx, fmt.Sprintf(`
		SELECT id, number, template_version_id, recipient_data, metadata, status,
		       storage_path, hash, hash_algorithm, issued_by, created_at, issued_at, expires_at
		FROM %s.certificates
		WHERE id = $1`, schema), id)

	cert, err := scanCertificate(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, certificate.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("select certificate: %w", err)
	}
	cert.Namespace = ns
	return cert, nil
}

func (r *Repository) Update(ctx context.Context, cert *certificate.Certificate) error {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return err
	}

	metadata, err := marshalMetadata(cert.Metadata)
	if err != nil {
		return err
	}

	tag, err := queryTarget(ctx, r.pool).Exec(ctx, fmt.Sprintf(`
		UPDATE %s.certificates
		SET metadata = $2, status = $3, storage_path = $4, hash = $5,
		    hash_algorithm = $6, issued_at = $7, expires_at = $8
		WHERE id = $1`, schema),
		cert.ID, metadata, cert.Status, cert.StoragePath, cert.Hash,
		cert.HashAlgorithm, cert.IssuedAt, cert.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return certificate.ErrCertificateNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s.certificates WHERE id = $1`, schema), id)
		if err != nil {
			return fmt.Errorf("delete certificate: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return certificate.ErrCertificateNotFound
		}

		if _, err := q.Exec(ctx, `DELETE FROM shared.certificate_numbers WHERE certificate_id = $1`, id); err != nil {
			return fmt.Errorf("release certificate number: %w", err)
		}
		return nil
	})
}

// NumberExists checks the shared number index and therefore needs no tenant
// context.
func (r *Repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := queryTarget(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM shared.certificate_numbers WHERE number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check certificate number: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status certificate.Status, limit int) ([]*certificate.Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := schemaIdent(ns)
	if err != nil {
		return nil, err
	}

	rows, err := queryTarget(ctx, r.pool).Query(ctx, fmt.Sprintf(`
		SELECT id, number, template_version_id, recipient_data, metadata, status,
		       storage_path, hash, hash_algorithm, issued_by, created_at, issued_at, expires_at
		FROM %s.certificates
		WHERE status = $1
		ORDER BY created_at
		LIMIT NULLIF($2, 0)`, schema), status, limit)
	if err != nil {
		return nil, fmt.Errorf("select certificates by status: %w", err)
	}
	defer rows.Close()

	var out []*certificate.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		cert.Namespace = ns
		out = append(out, cert)
	}
	return out, rows.Err()
}

func (r *Repository) CreateHash(ctx context.Context, h certificate.Hash) error {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := queryTarget(ctx, r.pool).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.certificate_hashes (certificate_id, algorithm, value, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (certificate_id) DO NOTHING`, schema),
		h.CertificateID, h.Algorithm, h.Value, h.CreatedAt); err != nil {
		return fmt.Errorf("insert certificate hash: %w", err)
	}
	return nil
}

func (r *Repository) GetHash(ctx context.Context, certID uuid.UUID) (certificate.Hash, error) {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return certificate.Hash{}, err
	}

	var h certificate.Hash
	err = queryTarget(ctx, r.pool).QueryRow(ctx, fmt.Sprintf(`
		SELECT certificate_id, algorithm, value, created_at
		FROM %s.certificate_hashes
		WHERE certificate_id = $1`, schema), certID,
	).Scan(&h.CertificateID, &h.Algorithm, &h.Value, &h.CreatedAt)
	if err != nil {
		if IsNotFoundError(err) {
			return certificate.Hash{}, certificate.ErrHashRecordNotFound
		}
		return certificate.Hash{}, fmt.Errorf("select certificate hash: %w", err)
	}
	return h, nil
}

func (r *Repository) DeleteHash(ctx context.Context, certID uuid.UUID) error {
	schema, err := schemaFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := queryTarget(ctx, r.pool).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s.certificate_hashes WHERE certificate_id = $1`, schema), certID); err != nil {
		return fmt.Errorf("delete certificate hash: %w", err)
	}
	return nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var (
		cert          certificate.Certificate
		recipientData []byte
		metadata      []byte
		issuedAt      *time.Time
		expiresAt     *time.Time
	)
	if err := row.Scan(
		&cert.ID, &cert.Number, &cert.TemplateVersionID, &recipientData, &metadata,
		&cert.Status, &cert.StoragePath, &cert.Hash, &cert.HashAlgorithm,
		&cert.IssuedBy, &cert.CreatedAt, &issuedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	if len(recipientData) > 0 {
		if err := json.Unmarshal(recipientData, &cert.RecipientData); err != nil {
			return nil, fmt.Errorf("unmarshal recipient data: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &cert.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	cert.IssuedAt = issuedAt
	cert.ExpiresAt = expiresAt
	return &cert, nil
}
