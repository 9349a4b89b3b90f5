package certificate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/tenant"
)

// Repository persists certificates inside the active tenant namespace. Every
// method resolves the namespace from the context and must fail with
// tenant.ErrNoActiveTenant when it is absent. A certificate created under
// one namespace is invisible to every other namespace, including by ID.
type Repository interface {
	// Create inserts the record. Inserting an ID that already exists in the
	// namespace is a no-op, which makes the PENDING insert idempotent.
	Create(ctx context.Context, cert *Certificate) error

	Get(ctx context.Context, id uuid.UUID) (*Certificate, error)
	Update(ctx context.Context, cert *Certificate) error
	Delete(ctx context.Context, id uuid.UUID) error

	// NumberExists checks number uniqueness across the whole deployment,
	// not just the active namespace.
	NumberExists(ctx context.Context, number string) (bool, error)

	ListByStatus(ctx context.Context, status Status, limit int) ([]*Certificate, error)

	CreateHash(ctx context.Context, h Hash) error
	GetHash(ctx context.Context, certID uuid.UUID) (Hash, error)
	DeleteHash(ctx context.Context, certID uuid.UUID) error
}

// TemplateStore resolves immutable template versions. Read-only: template
// CRUD belongs to the excluded management surface.
type TemplateStore interface {
	// Resolve returns ErrTemplateVersionNotFound for unknown identifiers.
	Resolve(ctx context.Context, id uuid.UUID) (TemplateVersion, error)
}

// Renderer produces the binary artifact from template source and recipient
// data. Treated as a pure function; implementations must respect ctx
// deadlines.
type Renderer interface {
	Render(ctx context.Context, src TemplateSource, data map[string]any) ([]byte, error)
}

// ArtifactStore is the object-store surface the engine needs.
type ArtifactStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	// ObjectPath builds the storage key. The convention is load-bearing:
	// the key starts with the tenant namespace segment so storage-level
	// auditing and per-tenant cleanup work without the database.
	ObjectPath(ns tenant.Namespace, certID uuid.UUID, issuedAt time.Time) string
}

// Publisher enqueues a generation job for the asynchronous path.
type Publisher interface {
	PublishGeneration(ctx context.Context, job GenerationJob) error
}

// QuotaCounter tracks issued certificates per tenant per billing window.
type QuotaCounter interface {
	IssuedThisMonth(ctx context.Context, ns tenant.Namespace) (int64, error)
	RecordIssued(ctx context.Context, ns tenant.Namespace) error
}

// IssuedRegistry is the shared, PII-free index behind public verification.
// Written only by the engine at issue time and on administrative delete.
type IssuedRegistry interface {
	Record(ctx context.Context, rec IssuedRecord) error
	// FindByHash returns ErrHashRecordNotFound when no issued certificate
	// carries the hash.
	FindByHash(ctx context.Context, hashValue string) (IssuedRecord, error)
	// FindByCertificate returns ErrHashRecordNotFound when the certificate
	// has no issued row. This is the lookup behind QR verification links,
	// which carry the certificate ID rather than the artifact hash.
	FindByCertificate(ctx context.Context, certID uuid.UUID) (IssuedRecord, error)
	Remove(ctx context.Context, certID uuid.UUID) error
}
