package certificate

import (
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/tenant"
)

// Status tracks a certificate through the generation state machine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusIssued     Status = "ISSUED"
	StatusFailed     Status = "FAILED"
	StatusRevoked    Status = "REVOKED"
)

// legalTransitions encodes the full state machine:
// PENDING → PROCESSING → {ISSUED | FAILED}; FAILED → PROCESSING (retry);
// ISSUED → REVOKED (terminal, one-way). Nothing else is permitted.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusIssued, StatusFailed},
	StatusFailed:     {StatusProcessing},
	StatusIssued:     {StatusRevoked},
	StatusRevoked:    {},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further generation work applies to the status.
// ISSUED is terminal for generation even though REVOKED can still follow.
func (s Status) Terminal() bool {
	return s == StatusIssued || s == StatusRevoked
}

// Certificate is the unit of work and the system's central record. Its
// namespace never changes after creation, and StoragePath and Hash are set
// together or not at all.
type Certificate struct {
	ID                uuid.UUID
	Number            string
	Namespace         tenant.Namespace
	TemplateVersionID uuid.UUID
	RecipientData     map[string]any
	Metadata          map[string]any
	Status            Status
	StoragePath       string
	Hash              string
	HashAlgorithm     string
	IssuedBy          string
	CreatedAt         time.Time
	IssuedAt          *time.Time
	ExpiresAt         *time.Time
}

// Clone returns a deep-enough copy for safe hand-off across goroutines: the
// maps are copied one level deep, which covers every mutation the pipeline
// performs.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	if c.RecipientData != nil {
		cp.RecipientData = make(map[string]any, len(c.RecipientData))
		for k, v := range c.RecipientData {
			cp.RecipientData[k] = v
		}
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// SetMetadata writes a diagnostics entry, allocating the map on first use.
func (c *Certificate) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

// Hash record binding a certificate to its digest. Created once when the
// certificate reaches ISSUED, immutable thereafter, deleted only alongside
// its certificate.
type Hash struct {
	CertificateID uuid.UUID
	Algorithm     string
	Value         string
	CreatedAt     time.Time
}

// GenerationJob is the only artifact that crosses the queue boundary. The
// worker re-reads all other state from the certificate record, so stale
// payload data cannot influence processing.
type GenerationJob struct {
	CertificateID uuid.UUID        `json:"certificateId"`
	Namespace     tenant.Namespace `json:"tenantNamespace"`
}

// JobKind routes generation jobs to the queue consumer.
const JobKind = "certificate.generate"

// TemplateState is the lifecycle state of a template version.
type TemplateState string

const (
	TemplateStateDraft     TemplateState = "draft"
	TemplateStatePublished TemplateState = "published"
	TemplateStateArchived  TemplateState = "archived"
)

// TemplateSource is the render input: markup plus stylesheet plus the
// structured field schema. The pipeline treats it as opaque beyond handing
// it to the renderer.
type TemplateSource struct {
	Markup string
	Style  string
	Schema map[string]any
}

// TemplateVersion is an immutable versioned render source. Published state
// is required at generation time only; issued certificates keep referencing
// their version regardless of later archival.
type TemplateVersion struct {
	ID        uuid.UUID
	Namespace tenant.Namespace
	Code      string
	State     TemplateState
	Source    TemplateSource
}

// IssuedRecord is the tenant-neutral row written to the shared issued
// registry when a certificate reaches ISSUED. It intentionally carries no
// recipient data so the public verification surface cannot leak PII.
type IssuedRecord struct {
	Hash          string
	Algorithm     string
	CertificateID uuid.UUID
	Number        string
	Namespace     tenant.Namespace
	IssuedAt      time.Time
}
