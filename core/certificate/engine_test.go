package certificate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/hash"
	"github.com/veridoc/veridoc/core/tenant"
)

// --- stub collaborators ---

type stubTemplates struct {
	mu       sync.Mutex
	versions map[uuid.UUID]certificate.TemplateVersion
}

func newStubTemplates(versions ...certificate.TemplateVersion) *stubTemplates {
	s := &stubTemplates{versions: make(map[uuid.UUID]certificate.TemplateVersion)}
	for _, v := range versions {
		s.versions[v.ID] = v
	}
	return s
}

func (s *stubTemplates) Resolve(_ context.Context, id uuid.UUID) (certificate.TemplateVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return certificate.TemplateVersion{}, certificate.ErrTemplateVersionNotFound
	}
	return v, nil
}

type stubRenderer struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (r *stubRenderer) Render(_ context.Context, src certificate.TemplateSource, data map[string]any) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.fail != nil {
		return nil, r.fail
	}
	return fmt.Appendf(nil, "pdf:%s:%v", src.Markup, data["certificateNumber"]), nil
}

func (r *stubRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Upload(_ context.Context, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return s.fail
	}
	s.objects[path] = data
	return nil
}

func (s *stubStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, path)
	return nil
}

func (s *stubStore) ObjectPath(ns tenant.Namespace, certID uuid.UUID, issuedAt time.Time) string {
	at := issuedAt.UTC()
	return fmt.Sprintf("%s/certificates/%d/%d/%s.pdf", ns, at.Year(), int(at.Month()), certID)
}

type capturePublisher struct {
	mu   sync.Mutex
	jobs []certificate.GenerationJob
	fail error
}

func (p *capturePublisher) PublishGeneration(_ context.Context, job certificate.GenerationJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail != nil {
		return p.fail
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *capturePublisher) published() []certificate.GenerationJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]certificate.GenerationJob(nil), p.jobs...)
}

type stubQuota struct {
	mu     sync.Mutex
	counts map[tenant.Namespace]int64
}

func newStubQuota() *stubQuota {
	return &stubQuota{counts: make(map[tenant.Namespace]int64)}
}

func (q *stubQuota) IssuedThisMonth(_ context.Context, ns tenant.Namespace) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[ns], nil
}

func (q *stubQuota) RecordIssued(_ context.Context, ns tenant.Namespace) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts[ns]++
	return nil
}

type stubDirectory struct {
	tenants map[tenant.Namespace]tenant.Tenant
}

func (d *stubDirectory) Lookup(_ context.Context, ns tenant.Namespace) (tenant.Tenant, error) {
	t, ok := d.tenants[ns]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

// --- fixture ---

type engineFixture struct {
	engine    *certificate.Engine
	repo      *certificate.MemoryRepository
	registry  *certificate.MemoryRegistry
	templates *stubTemplates
	renderer  *stubRenderer
	store     *stubStore
	publisher *capturePublisher
	quota     *stubQuota
	published certificate.TemplateVersion
	draft     certificate.TemplateVersion
}

func newEngineFixture(t *testing.T, opts ...certificate.EngineOption) *engineFixture {
	t.Helper()

	published := certificate.TemplateVersion{
		ID:        uuid.New(),
		Namespace: "acme",
		Code:      "DIPLOMA",
		State:     certificate.TemplateStatePublished,
		Source:    certificate.TemplateSource{Markup: "<h1>{{.name}}</h1>"},
	}
	draft := certificate.TemplateVersion{
		ID:        uuid.New(),
		Namespace: "acme",
		Code:      "DIPLOMA",
		State:     certificate.TemplateStateDraft,
		Source:    certificate.TemplateSource{Markup: "<h1>wip</h1>"},
	}

	f := &engineFixture{
		repo:      certificate.NewMemoryRepository(),
		registry:  certificate.NewMemoryRegistry(),
		templates: newStubTemplates(published, draft),
		renderer:  &stubRenderer{},
		store:     newStubStore(),
		publisher: &capturePublisher{},
		quota:     newStubQuota(),
		published: published,
		draft:     draft,
	}

	directory := &stubDirectory{tenants: map[tenant.Namespace]tenant.Tenant{
		"acme":   {Namespace: "acme", Name: "Acme Corp", Active: true, MonthlyCertificateCap: 3},
		"globex": {Namespace: "globex", Name: "Globex", Active: true},
		"closed": {Namespace: "closed", Name: "Closed Inc", Active: false},
	}}

	engine, err := certificate.NewEngine(certificate.EngineDeps{
		Repository: f.repo,
		Templates:  f.templates,
		Directory:  directory,
		Renderer:   f.renderer,
		Store:      f.store,
		Publisher:  f.publisher,
		Quota:      f.quota,
		Registry:   f.registry,
	}, opts...)
	require.NoError(t, err)
	f.engine = engine

	return f
}

func tenantContext(t *testing.T, ns tenant.Namespace) context.Context {
	t.Helper()

	ctx, err := tenant.WithNamespace(context.Background(), ns)
	require.NoError(t, err)
	return ctx
}

func validRequest(f *engineFixture) certificate.GenerateRequest {
	return certificate.GenerateRequest{
		TemplateVersionID: f.published.ID,
		RecipientData:     map[string]any{"name": "Jane Doe"},
		IssuedBy:          "registrar@acme.example",
	}
}

// --- tests ---

func TestGenerateSynchronous(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	cert, err := f.engine.Generate(ctx, validRequest(f), true)
	require.NoError(t, err)

	assert.Equal(t, certificate.StatusIssued, cert.Status)
	assert.Len(t, cert.Hash, hash.EncodedLength)
	assert.Equal(t, hash.Algorithm, cert.HashAlgorithm)
	require.NotNil(t, cert.IssuedAt)
	assert.Regexp(t, `^acme/certificates/\d{4}/\d{1,2}/`+cert.ID.String()+`\.pdf$`, cert.StoragePath)

	t.Run("artifact stored under the returned path", func(t *testing.T) {
		data, ok := f.store.objects[cert.StoragePath]
		require.True(t, ok)
		assert.Equal(t, hash.Digest(data), cert.Hash)
	})

	t.Run("hash record persisted", func(t *testing.T) {
		h, err := f.repo.GetHash(ctx, cert.ID)
		require.NoError(t, err)
		assert.Equal(t, cert.Hash, h.Value)
	})

	t.Run("issued registry row written", func(t *testing.T) {
		rec, err := f.registry.FindByHash(context.Background(), cert.Hash)
		require.NoError(t, err)
		assert.Equal(t, cert.ID, rec.CertificateID)
		assert.Equal(t, cert.Number, rec.Number)
	})

	t.Run("quota usage recorded", func(t *testing.T) {
		n, err := f.quota.IssuedThisMonth(ctx, "acme")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("no queue traffic on the synchronous path", func(t *testing.T) {
		assert.Empty(t, f.publisher.published())
	})
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	t.Run("requires tenant context", func(t *testing.T) {
		_, err := f.engine.Generate(context.Background(), validRequest(f), true)
		assert.ErrorIs(t, err, tenant.ErrNoActiveTenant)
	})

	t.Run("empty recipient data", func(t *testing.T) {
		req := validRequest(f)
		req.RecipientData = nil
		_, err := f.engine.Generate(ctx, req, true)
		assert.ErrorIs(t, err, certificate.ErrRecipientDataRequired)
	})

	t.Run("missing template version id", func(t *testing.T) {
		req := validRequest(f)
		req.TemplateVersionID = uuid.Nil
		_, err := f.engine.Generate(ctx, req, true)
		assert.ErrorIs(t, err, certificate.ErrInvalidRequest)
		assert.NotErrorIs(t, err, certificate.ErrRecipientDataRequired,
			"a template field failure must not masquerade as a recipient data error")
	})

	t.Run("unknown template version", func(t *testing.T) {
		req := validRequest(f)
		req.TemplateVersionID = uuid.New()
		_, err := f.engine.Generate(ctx, req, true)
		assert.ErrorIs(t, err, certificate.ErrTemplateVersionNotFound)
	})

	t.Run("draft template rejected with nothing persisted", func(t *testing.T) {
		req := validRequest(f)
		req.TemplateVersionID = f.draft.ID
		_, err := f.engine.Generate(ctx, req, true)
		assert.ErrorIs(t, err, certificate.ErrTemplateNotPublished)

		pending, err := f.repo.ListByStatus(ctx, certificate.StatusPending, 0)
		require.NoError(t, err)
		assert.Empty(t, pending, "validation failures must not leave records behind")
	})

	t.Run("foreign tenant template rejected", func(t *testing.T) {
		req := validRequest(f)
		_, err := f.engine.Generate(tenantContext(t, "globex"), req, true)
		assert.ErrorIs(t, err, certificate.ErrTenantMismatch)
	})

	t.Run("inactive tenant rejected", func(t *testing.T) {
		other := newEngineFixture(t)
		other.published.Namespace = "closed"
		other.templates.versions[other.published.ID] = other.published

		_, err := other.engine.Generate(tenantContext(t, "closed"), validRequest(other), true)
		assert.ErrorIs(t, err, tenant.ErrTenantInactive)
	})

	t.Run("explicit duplicate number rejected", func(t *testing.T) {
		other := newEngineFixture(t)
		octx := tenantContext(t, "acme")

		first, err := other.engine.Generate(octx, validRequest(other), true)
		require.NoError(t, err)

		req := validRequest(other)
		req.Number = first.Number
		_, err = other.engine.Generate(octx, req, true)
		assert.ErrorIs(t, err, certificate.ErrDuplicateCertificateNumber)
	})
}

func TestGenerateQuota(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	// acme's cap is 3.
	for range 3 {
		_, err := f.engine.Generate(ctx, validRequest(f), true)
		require.NoError(t, err)
	}

	_, err := f.engine.Generate(ctx, validRequest(f), true)
	assert.ErrorIs(t, err, certificate.ErrQuotaExceeded)

	t.Run("uncapped tenant is unlimited", func(t *testing.T) {
		other := newEngineFixture(t)
		other.published.Namespace = "globex"
		other.templates.versions[other.published.ID] = other.published
		gctx := tenantContext(t, "globex")

		for range 10 {
			_, err := other.engine.Generate(gctx, validRequest(other), true)
			require.NoError(t, err)
		}
	})
}

func TestGenerateAsynchronous(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	cert, err := f.engine.Generate(ctx, validRequest(f), false)
	require.NoError(t, err)

	assert.Equal(t, certificate.StatusPending, cert.Status)
	assert.Empty(t, cert.StoragePath)
	assert.Empty(t, cert.Hash)
	assert.Zero(t, f.renderer.callCount(), "rendering belongs to the worker")

	jobs := f.publisher.published()
	require.Len(t, jobs, 1)
	assert.Equal(t, cert.ID, jobs[0].CertificateID)
	assert.Equal(t, tenant.Namespace("acme"), jobs[0].Namespace)
}

func TestProcessFailureStages(t *testing.T) {
	t.Parallel()

	t.Run("render failure marks FAILED with diagnostics", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")
		f.renderer.fail = errors.New("chrome crashed")

		cert, err := f.engine.Generate(ctx, validRequest(f), true)
		require.NoError(t, err, "generation failures are recorded, not returned")

		assert.Equal(t, certificate.StatusFailed, cert.Status)
		assert.Equal(t, "chrome crashed", cert.Metadata["error"])
		assert.Equal(t, "render", cert.Metadata["stage"])
		assert.NotEmpty(t, cert.Metadata["failed_at"])
		assert.Empty(t, cert.StoragePath)
		assert.Empty(t, cert.Hash)
	})

	t.Run("upload failure marks FAILED", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")
		f.store.fail = errors.New("bucket unavailable")

		cert, err := f.engine.Generate(ctx, validRequest(f), true)
		require.NoError(t, err)

		assert.Equal(t, certificate.StatusFailed, cert.Status)
		assert.Equal(t, "upload", cert.Metadata["stage"])
		assert.Empty(t, cert.StoragePath, "no partial issuance state on failure")
	})

	t.Run("failed certificate retries to ISSUED", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")
		f.renderer.fail = errors.New("transient")

		failed, err := f.engine.Generate(ctx, validRequest(f), true)
		require.NoError(t, err)
		require.Equal(t, certificate.StatusFailed, failed.Status)

		f.renderer.fail = nil
		issued, err := f.engine.Process(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusIssued, issued.Status)
		assert.NotEmpty(t, issued.Hash)
	})
}

func TestProcessResumesAbandonedProcessing(t *testing.T) {
	t.Parallel()

	t.Run("inline path resumes a mid-flight record", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")

		pending, err := f.engine.Generate(ctx, validRequest(f), false)
		require.NoError(t, err)

		// A worker that crashed right after the PROCESSING write leaves the
		// record mid-flight with no job outcome recorded.
		stuck, err := f.repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		stuck.Status = certificate.StatusProcessing
		require.NoError(t, f.repo.Update(ctx, stuck))

		issued, err := f.engine.Process(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusIssued, issued.Status)
		assert.NotEmpty(t, issued.Hash)
	})

	t.Run("redelivered job recovers via the consumer", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")

		pending, err := f.engine.Generate(ctx, validRequest(f), false)
		require.NoError(t, err)

		stuck, err := f.repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		stuck.Status = certificate.StatusProcessing
		require.NoError(t, f.repo.Update(ctx, stuck))

		job := certificate.GenerationJob{CertificateID: pending.ID, Namespace: "acme"}
		require.NoError(t, f.engine.HandleGenerationJob(context.Background(), job))

		issued, err := f.repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusIssued, issued.Status)
	})
}

func TestProcessIdempotent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	issued, err := f.engine.Generate(ctx, validRequest(f), true)
	require.NoError(t, err)
	require.Equal(t, certificate.StatusIssued, issued.Status)
	renders := f.renderer.callCount()

	// Redelivered job for an already-issued certificate.
	again, err := f.engine.Process(ctx, issued.ID)
	require.NoError(t, err)

	assert.Equal(t, certificate.StatusIssued, again.Status)
	assert.Equal(t, issued.StoragePath, again.StoragePath)
	assert.Equal(t, issued.Hash, again.Hash)
	assert.Equal(t, renders, f.renderer.callCount(), "terminal records must not re-render")
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	issued, err := f.engine.Generate(ctx, validRequest(f), true)
	require.NoError(t, err)

	revoked, err := f.engine.Revoke(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusRevoked, revoked.Status)

	t.Run("revocation is one-way", func(t *testing.T) {
		_, err := f.engine.Revoke(ctx, issued.ID)
		assert.ErrorIs(t, err, certificate.ErrInvalidStateTransition)

		after, err := f.engine.Process(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusRevoked, after.Status, "redelivery cannot resurrect a revoked certificate")
	})

	t.Run("pending certificates cannot be revoked", func(t *testing.T) {
		pending, err := f.engine.Generate(ctx, validRequest(f), false)
		require.NoError(t, err)

		_, err = f.engine.Revoke(ctx, pending.ID)
		assert.ErrorIs(t, err, certificate.ErrInvalidStateTransition)
	})
}

func TestRetry(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")
	f.renderer.fail = errors.New("transient")

	failed, err := f.engine.Generate(ctx, validRequest(f), true)
	require.NoError(t, err)
	require.Equal(t, certificate.StatusFailed, failed.Status)

	_, err = f.engine.Retry(ctx, failed.ID)
	require.NoError(t, err)

	jobs := f.publisher.published()
	require.Len(t, jobs, 1)
	assert.Equal(t, failed.ID, jobs[0].CertificateID)

	t.Run("unknown certificate", func(t *testing.T) {
		_, err := f.engine.Retry(ctx, uuid.New())
		assert.ErrorIs(t, err, certificate.ErrCertificateNotFound)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := tenantContext(t, "acme")

	issued, err := f.engine.Generate(ctx, validRequest(f), true)
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(ctx, issued.ID))

	_, err = f.repo.Get(ctx, issued.ID)
	assert.ErrorIs(t, err, certificate.ErrCertificateNotFound)

	_, err = f.registry.FindByHash(context.Background(), issued.Hash)
	assert.ErrorIs(t, err, certificate.ErrHashRecordNotFound)

	_, ok := f.store.objects[issued.StoragePath]
	assert.False(t, ok, "stored artifact removed")
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	acme := tenantContext(t, "acme")

	issued, err := f.engine.Generate(acme, validRequest(f), true)
	require.NoError(t, err)

	// Another tenant cannot reach the record even with its exact ID.
	globex := tenantContext(t, "globex")
	_, err = f.repo.Get(globex, issued.ID)
	assert.ErrorIs(t, err, certificate.ErrCertificateNotFound)

	_, err = f.engine.Revoke(globex, issued.ID)
	assert.ErrorIs(t, err, certificate.ErrCertificateNotFound)
}

func TestHandleGenerationJob(t *testing.T) {
	t.Parallel()

	t.Run("processes the certificate under the payload tenant", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")

		pending, err := f.engine.Generate(ctx, validRequest(f), false)
		require.NoError(t, err)

		job := certificate.GenerationJob{CertificateID: pending.ID, Namespace: "acme"}
		// The consumer context carries no tenant; the payload must supply it.
		require.NoError(t, f.engine.HandleGenerationJob(context.Background(), job))

		issued, err := f.repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusIssued, issued.Status)
	})

	t.Run("unknown certificate is acknowledged", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		job := certificate.GenerationJob{CertificateID: uuid.New(), Namespace: "acme"}
		assert.NoError(t, f.engine.HandleGenerationJob(context.Background(), job))
	})

	t.Run("unresolvable tenant is acknowledged", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		job := certificate.GenerationJob{CertificateID: uuid.New(), Namespace: "nobody"}
		assert.NoError(t, f.engine.HandleGenerationJob(context.Background(), job))
	})

	t.Run("generation failure is acknowledged and recorded", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		ctx := tenantContext(t, "acme")
		pending, err := f.engine.Generate(ctx, validRequest(f), false)
		require.NoError(t, err)

		f.renderer.fail = errors.New("render exploded")
		job := certificate.GenerationJob{CertificateID: pending.ID, Namespace: "acme"}
		require.NoError(t, f.engine.HandleGenerationJob(context.Background(), job),
			"application failures must not trigger broker redelivery")

		failed, err := f.repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, certificate.StatusFailed, failed.Status)
	})
}
