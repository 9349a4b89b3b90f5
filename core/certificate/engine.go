package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/hash"
	"github.com/veridoc/veridoc/core/logger"
	"github.com/veridoc/veridoc/core/tenant"
)

const artifactContentType = "application/pdf"

// Metadata keys the engine writes for diagnostics and error recording.
const (
	metaError     = "error"
	metaFailedAt  = "failed_at"
	metaFailStage = "stage"
	stageValidate = "validate"
	stageRender   = "render"
	stageUpload   = "upload"
)

// GenerateRequest is the caller's input to the pipeline.
type GenerateRequest struct {
	TemplateVersionID uuid.UUID      `validate:"required"`
	RecipientData     map[string]any `validate:"required,min=1"`
	Number            string         // optional explicit number
	IssuedBy          string
	ExpiresAt         *time.Time
}

// Engine drives the certificate state machine. One Engine serves both
// dispatch modes; the async consumer calls the same Process the sync path
// uses inline, so the two paths cannot drift.
type Engine struct {
	repo      Repository
	templates TemplateStore
	directory tenant.Directory
	renderer  Renderer
	store     ArtifactStore
	publisher Publisher
	quota     QuotaCounter
	registry  IssuedRegistry

	validate       *validator.Validate
	log            *slog.Logger
	now            func() time.Time
	renderTimeout  time.Duration
	uploadTimeout  time.Duration
	numberAttempts int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the engine clock, used in tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithRenderTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.renderTimeout = d
		}
	}
}

func WithUploadTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.uploadTimeout = d
		}
	}
}

func WithNumberAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.numberAttempts = n
		}
	}
}

// EngineDeps bundles the required collaborators.
type EngineDeps struct {
	Repository Repository
	Templates  TemplateStore
	Directory  tenant.Directory
	Renderer   Renderer
	Store      ArtifactStore
	Publisher  Publisher
	Quota      QuotaCounter
	Registry   IssuedRegistry
}

func NewEngine(deps EngineDeps, opts ...EngineOption) (*Engine, error) {
	switch {
	case deps.Repository == nil:
		return nil, errors.New("certificate: repository is required")
	case deps.Templates == nil:
		return nil, errors.New("certificate: template store is required")
	case deps.Directory == nil:
		return nil, errors.New("certificate: tenant directory is required")
	case deps.Renderer == nil:
		return nil, errors.New("certificate: renderer is required")
	case deps.Store == nil:
		return nil, errors.New("certificate: artifact store is required")
	case deps.Publisher == nil:
		return nil, errors.New("certificate: publisher is required")
	case deps.Quota == nil:
		return nil, errors.New("certificate: quota counter is required")
	case deps.Registry == nil:
		return nil, errors.New("certificate: issued registry is required")
	}

	e := &Engine{
		repo:           deps.Repository,
		templates:      deps.Templates,
		directory:      deps.Directory,
		renderer:       deps.Renderer,
		store:          deps.Store,
		publisher:      deps.Publisher,
		quota:          deps.Quota,
		registry:       deps.Registry,
		validate:       validator.New(),
		log:            logger.Discard(),
		now:            time.Now,
		renderTimeout:  30 * time.Second,
		uploadTimeout:  30 * time.Second,
		numberAttempts: 5,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Generate runs spec'd steps 1-6 and, when synchronous, the full pipeline
// inline. The asynchronous path returns the PENDING record immediately after
// publishing its generation job.
//
// Validation failures are returned before any state beyond PENDING exists.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest, synchronous bool) (*Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.RecipientData) == 0 {
		return nil, ErrRecipientDataRequired
	}
	if err := e.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "RecipientData" {
					return nil, fmt.Errorf("%w: %s", ErrRecipientDataRequired, fe)
				}
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	tv, err := e.templates.Resolve(ctx, req.TemplateVersionID)
	if err != nil {
		return nil, err
	}
	if tv.Namespace != ns {
		return nil, ErrTenantMismatch
	}
	if tv.State != TemplateStatePublished {
		return nil, ErrTemplateNotPublished
	}

	owner, err := tenant.Resolve(ctx, e.directory, ns)
	if err != nil {
		return nil, err
	}
	if err := e.checkQuota(ctx, owner); err != nil {
		return nil, err
	}

	number := req.Number
	if number == "" {
		number, err = generateNumber(ctx, e.repo, tv.Code, e.now(), e.numberAttempts)
		if err != nil {
			return nil, err
		}
	} else {
		taken, err := e.repo.NumberExists(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("check certificate number: %w", err)
		}
		if taken {
			return nil, ErrDuplicateCertificateNumber
		}
	}

	cert := &Certificate{
		ID:                uuid.New(),
		Number:            number,
		Namespace:         ns,
		TemplateVersionID: tv.ID,
		RecipientData:     req.RecipientData,
		Status:            StatusPending,
		IssuedBy:          req.IssuedBy,
		CreatedAt:         e.now().UTC(),
		ExpiresAt:         req.ExpiresAt,
	}
	if err := e.repo.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("persist pending certificate: %w", err)
	}

	if !synchronous {
		job := GenerationJob{CertificateID: cert.ID, Namespace: ns}
		if err := e.publisher.PublishGeneration(ctx, job); err != nil {
			return nil, fmt.Errorf("publish generation job: %w", err)
		}
		e.log.InfoContext(ctx, "generation job published",
			logger.Component("engine"),
			logger.UUID("certificate_id", cert.ID),
			logger.Namespace(ns.String()))
		return cert, nil
	}

	return e.Process(ctx, cert.ID)
}

// Process executes steps 7-11: transition to PROCESSING, render, hash,
// upload, issue. It re-reads the current status first and no-ops on records
// that are already ISSUED or REVOKED, which keeps redelivered jobs
// convergent.
//
// Renderer and upload failures do not surface as errors: they transition the
// record to FAILED with the cause in metadata, and the FAILED record is
// returned. A non-nil error means the pipeline itself could not run
// (unknown certificate, persistence failure).
func (e *Engine) Process(ctx context.Context, certID uuid.UUID) (*Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	cert, err := e.repo.Get(ctx, certID)
	if err != nil {
		return nil, err
	}

	// Idempotency guard for at-least-once delivery: a duplicate or stale
	// job must leave issued artifacts untouched.
	if cert.Status.Terminal() {
		return cert, nil
	}

	// A record already in PROCESSING was abandoned by a crashed worker after
	// the status write; the redelivered job resumes the pipeline instead of
	// dead-ending on the transition check.
	if cert.Status != StatusProcessing {
		if !CanTransition(cert.Status, StatusProcessing) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, cert.Status, StatusProcessing)
		}
		cert.Status = StatusProcessing
		if err := e.repo.Update(ctx, cert); err != nil {
			return nil, fmt.Errorf("persist processing status: %w", err)
		}
	}

	tv, err := e.templates.Resolve(ctx, cert.TemplateVersionID)
	if err != nil {
		return e.markFailed(ctx, cert, stageValidate, err)
	}

	artifact, err := e.render(ctx, tv.Source, cert)
	if err != nil {
		return e.markFailed(ctx, cert, stageRender, err)
	}

	digest := hash.Digest(artifact)
	issuedAt := e.now().UTC()
	path := e.store.ObjectPath(ns, cert.ID, issuedAt)

	if err := e.upload(ctx, path, artifact); err != nil {
		return e.markFailed(ctx, cert, stageUpload, err)
	}

	cert.StoragePath = path
	cert.Hash = digest
	cert.HashAlgorithm = hash.Algorithm
	cert.IssuedAt = &issuedAt
	cert.Status = StatusIssued
	if err := e.repo.Update(ctx, cert); err != nil {
		return nil, fmt.Errorf("persist issued certificate: %w", err)
	}

	if err := e.repo.CreateHash(ctx, Hash{
		CertificateID: cert.ID,
		Algorithm:     hash.Algorithm,
		Value:         digest,
		CreatedAt:     issuedAt,
	}); err != nil {
		return nil, fmt.Errorf("persist certificate hash: %w", err)
	}

	if err := e.registry.Record(ctx, IssuedRecord{
		Hash:          digest,
		Algorithm:     hash.Algorithm,
		CertificateID: cert.ID,
		Number:        cert.Number,
		Namespace:     ns,
		IssuedAt:      issuedAt,
	}); err != nil {
		return nil, fmt.Errorf("record issued certificate: %w", err)
	}

	if err := e.quota.RecordIssued(ctx, ns); err != nil {
		// Quota accounting must not undo an issued certificate; the counter
		// self-corrects next window.
		e.log.WarnContext(ctx, "failed to record quota usage",
			logger.Component("engine"),
			logger.UUID("certificate_id", cert.ID),
			logger.Error(err))
	}

	e.log.InfoContext(ctx, "certificate issued",
		logger.Component("engine"),
		logger.UUID("certificate_id", cert.ID),
		slog.String("certificate_number", cert.Number),
		logger.Namespace(ns.String()))

	return cert, nil
}

// Revoke transitions an ISSUED certificate to REVOKED. Any other current
// status fails with ErrInvalidStateTransition and leaves the record
// unchanged.
func (e *Engine) Revoke(ctx context.Context, certID uuid.UUID) (*Certificate, error) {
	cert, err := e.repo.Get(ctx, certID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(cert.Status, StatusRevoked) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, cert.Status, StatusRevoked)
	}

	cert.Status = StatusRevoked
	if err := e.repo.Update(ctx, cert); err != nil {
		return nil, fmt.Errorf("persist revoked status: %w", err)
	}
	return cert, nil
}

// Retry republishes the generation job for a certificate, typically one in
// FAILED. The publish boundary does not special-case terminal records; the
// status re-check inside Process turns stale retries into no-ops.
func (e *Engine) Retry(ctx context.Context, certID uuid.UUID) (*Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	cert, err := e.repo.Get(ctx, certID)
	if err != nil {
		return nil, err
	}

	job := GenerationJob{CertificateID: cert.ID, Namespace: ns}
	if err := e.publisher.PublishGeneration(ctx, job); err != nil {
		return nil, fmt.Errorf("publish retry job: %w", err)
	}
	return cert, nil
}

// Delete is the administrative delete: it removes the hash record and the
// registry row with the certificate, and deletes the stored artifact
// best-effort.
func (e *Engine) Delete(ctx context.Context, certID uuid.UUID) error {
	cert, err := e.repo.Get(ctx, certID)
	if err != nil {
		return err
	}

	if err := e.registry.Remove(ctx, certID); err != nil {
		return fmt.Errorf("remove issued registry row: %w", err)
	}
	if err := e.repo.DeleteHash(ctx, certID); err != nil {
		return fmt.Errorf("delete hash record: %w", err)
	}
	if err := e.repo.Delete(ctx, certID); err != nil {
		return err
	}

	if cert.StoragePath != "" {
		if err := e.store.Delete(ctx, cert.StoragePath); err != nil {
			e.log.WarnContext(ctx, "failed to delete stored artifact",
				logger.Component("engine"),
				logger.UUID("certificate_id", certID),
				slog.String("path", cert.StoragePath),
				logger.Error(err))
		}
	}
	return nil
}

// HandleGenerationJob is the queue consumer entry point. It restores the
// tenant context from the job payload and runs the shared inline pipeline.
//
// It returns nil for every application-level outcome - generation failures
// are recorded on the certificate, unknown certificates and tenants are
// logged and dropped - so the job is acknowledged and retry policy stays in
// application data instead of broker redelivery.
func (e *Engine) HandleGenerationJob(ctx context.Context, job GenerationJob) error {
	if _, err := tenant.Resolve(ctx, e.directory, job.Namespace); err != nil {
		e.log.ErrorContext(ctx, "dropping job for unresolvable tenant",
			logger.Component("consumer"),
			logger.UUID("certificate_id", job.CertificateID),
			logger.Namespace(job.Namespace.String()),
			logger.Error(err))
		return nil
	}

	// The consumer never inherits tenant state; the namespace comes from
	// the job payload alone and dies with this call.
	tctx, err := tenant.WithNamespace(ctx, job.Namespace)
	if err != nil {
		e.log.ErrorContext(ctx, "dropping job with invalid namespace",
			logger.Component("consumer"),
			logger.UUID("certificate_id", job.CertificateID),
			logger.Error(err))
		return nil
	}

	cert, err := e.Process(tctx, job.CertificateID)
	switch {
	case errors.Is(err, ErrCertificateNotFound):
		// The record is gone; redelivery cannot help.
		e.log.WarnContext(tctx, "dropping job for missing certificate",
			logger.Component("consumer"),
			logger.UUID("certificate_id", job.CertificateID))
		return nil
	case err != nil:
		e.log.ErrorContext(tctx, "generation pipeline error",
			logger.Component("consumer"),
			logger.UUID("certificate_id", job.CertificateID),
			logger.Error(err))
		return nil
	}

	if cert.Status == StatusFailed {
		e.log.WarnContext(tctx, "generation failed",
			logger.Component("consumer"),
			logger.UUID("certificate_id", cert.ID),
			slog.Any("metadata", cert.Metadata))
	}
	return nil
}

func (e *Engine) checkQuota(ctx context.Context, owner tenant.Tenant) error {
	if owner.MonthlyCertificateCap <= 0 {
		return nil
	}
	issued, err := e.quota.IssuedThisMonth(ctx, owner.Namespace)
	if err != nil {
		return fmt.Errorf("read quota counter: %w", err)
	}
	if issued >= int64(owner.MonthlyCertificateCap) {
		return ErrQuotaExceeded
	}
	return nil
}

func (e *Engine) render(ctx context.Context, src TemplateSource, cert *Certificate) ([]byte, error) {
	data := make(map[string]any, len(cert.RecipientData)+2)
	for k, v := range cert.RecipientData {
		data[k] = v
	}
	// Reserved keys the renderer may use for verification artifacts.
	data["certificateId"] = cert.ID.String()
	data["certificateNumber"] = cert.Number

	rctx, cancel := context.WithTimeout(ctx, e.renderTimeout)
	defer cancel()

	return e.renderer.Render(rctx, src, data)
}

func (e *Engine) upload(ctx context.Context, path string, artifact []byte) error {
	uctx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	defer cancel()

	return e.store.Upload(uctx, path, artifact, artifactContentType)
}

// markFailed converts a pipeline stage error into a FAILED record with the
// cause captured in metadata. Timeouts are treated identically to failures.
func (e *Engine) markFailed(ctx context.Context, cert *Certificate, stage string, cause error) (*Certificate, error) {
	cert.Status = StatusFailed
	cert.SetMetadata(metaError, cause.Error())
	cert.SetMetadata(metaFailStage, stage)
	cert.SetMetadata(metaFailedAt, e.now().UTC().Format(time.RFC3339))

	if err := e.repo.Update(ctx, cert); err != nil {
		return nil, fmt.Errorf("persist failed status: %w", err)
	}

	e.log.WarnContext(ctx, "certificate generation failed",
		logger.Component("engine"),
		logger.UUID("certificate_id", cert.ID),
		slog.String("stage", stage),
		logger.Error(cause))

	return cert, nil
}
