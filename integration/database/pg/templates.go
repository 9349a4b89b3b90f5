package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/tenant"
)

var _ certificate.TemplateStore = (*TemplateStore)(nil)

// TemplateStore resolves immutable template versions from the active
// tenant's schema. Read-only; template authoring happens outside this
// service.
type TemplateStore struct {
	pool *pgxpool.Pool
}

func NewTemplateStore(pool *pgxpool.Pool) (*TemplateStore, error) {
	if pool == nil {
		return nil, errors.New("pg: pool cannot be nil")
	}
	return &TemplateStore{pool: pool}, nil
}

func (s *TemplateStore) Resolve(ctx context.Context, id uuid.UUID) (certificate.TemplateVersion, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return certificate.TemplateVersion{}, err
	}
	schema, err := schemaIdent(ns)
	if err != nil {
		return certificate.TemplateVersion{}, err
	}

	var (
		tv     certificate.TemplateVersion
		schFld []byte
	)
	err = queryTarget(ctx, s.pool).QueryRow(ctx, fmt.Sprintf(`
		SELECT id, code, state, markup, style, field_schema
		FROM %s.template_versions
		WHERE id = $1`, schema), id,
	).Scan(&tv.ID, &tv.Code, &tv.State, &tv.Source.Markup, &tv.Source.Style, &schFld)
	if err != nil {
		if IsNotFoundError(err) {
			return certificate.TemplateVersion{}, certificate.ErrTemplateVersionNotFound
		}
		return certificate.TemplateVersion{}, fmt.Errorf("select template version: %w", err)
	}

	if len(schFld) > 0 {
		if err := json.Unmarshal(schFld, &tv.Source.Schema); err != nil {
			return certificate.TemplateVersion{}, fmt.Errorf("unmarshal template field schema: %w", err)
		}
	}
	tv.Namespace = ns
	return tv, nil
}
