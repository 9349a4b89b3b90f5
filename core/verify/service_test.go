package verify_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/hash"
	"github.com/veridoc/veridoc/core/tenant"
	"github.com/veridoc/veridoc/core/verify"
)

func issuedFixture(t *testing.T) (context.Context, *certificate.MemoryRepository, *certificate.MemoryRegistry, *certificate.Certificate) {
	t.Helper()

	ctx, err := tenant.WithNamespace(context.Background(), "acme")
	require.NoError(t, err)

	repo := certificate.NewMemoryRepository()
	registry := certificate.NewMemoryRegistry()

	digest := hash.Digest([]byte("artifact bytes"))
	issuedAt := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	cert := &certificate.Certificate{
		ID:            uuid.New(),
		Number:        "DIPLOMA-20260501-ABCDEF",
		Namespace:     "acme",
		Status:        certificate.StatusIssued,
		StoragePath:   "acme/certificates/2026/5/x.pdf",
		Hash:          digest,
		HashAlgorithm: hash.Algorithm,
		IssuedAt:      &issuedAt,
	}
	require.NoError(t, repo.Create(ctx, cert))
	require.NoError(t, registry.Record(ctx, certificate.IssuedRecord{
		Hash:          digest,
		Algorithm:     hash.Algorithm,
		CertificateID: cert.ID,
		Number:        cert.Number,
		Namespace:     "acme",
		IssuedAt:      issuedAt,
	}))

	return ctx, repo, registry, cert
}

func TestVerify(t *testing.T) {
	t.Parallel()

	ctx, repo, registry, cert := issuedFixture(t)
	svc, err := verify.NewService(repo, registry)
	require.NoError(t, err)

	t.Run("stored hash verifies", func(t *testing.T) {
		ok, err := svc.Verify(ctx, cert.ID, cert.Hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("any other string fails", func(t *testing.T) {
		ok, err := svc.Verify(ctx, cert.ID, strings.ToUpper(cert.Hash))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = svc.Verify(ctx, cert.ID, "nonsense")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-issued certificate never verifies", func(t *testing.T) {
		pending := &certificate.Certificate{
			ID:        uuid.New(),
			Number:    "DIPLOMA-20260501-PENDIN",
			Namespace: "acme",
			Status:    certificate.StatusPending,
		}
		require.NoError(t, repo.Create(ctx, pending))

		ok, err := svc.Verify(ctx, pending.ID, cert.Hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("requires tenant context", func(t *testing.T) {
		_, err := svc.Verify(context.Background(), cert.ID, cert.Hash)
		assert.ErrorIs(t, err, tenant.ErrNoActiveTenant)
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	_, repo, registry, cert := issuedFixture(t)
	svc, err := verify.NewService(repo, registry)
	require.NoError(t, err)

	// Lookup is the public surface: no tenant context on purpose.
	pub := context.Background()

	t.Run("known hash returns number and issuance time only", func(t *testing.T) {
		res, err := svc.Lookup(pub, cert.Hash)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, cert.Number, res.CertificateNumber)
		require.NotNil(t, res.IssuedAt)
		assert.Equal(t, *cert.IssuedAt, *res.IssuedAt)
	})

	t.Run("unknown hash is a negative answer", func(t *testing.T) {
		res, err := svc.Lookup(pub, strings.Repeat("0", 64))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Empty(t, res.CertificateNumber)
	})

	t.Run("malformed hash short-circuits", func(t *testing.T) {
		res, err := svc.Lookup(pub, "short")
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})
}

func TestLookupCertificate(t *testing.T) {
	t.Parallel()

	_, repo, registry, cert := issuedFixture(t)
	svc, err := verify.NewService(repo, registry)
	require.NoError(t, err)

	// Same public posture as Lookup: no tenant context.
	pub := context.Background()

	t.Run("scanned badge id resolves to a positive answer", func(t *testing.T) {
		res, err := svc.LookupCertificate(pub, cert.ID.String())
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, cert.Number, res.CertificateNumber)
		require.NotNil(t, res.IssuedAt)
		assert.Equal(t, *cert.IssuedAt, *res.IssuedAt)
	})

	t.Run("unknown id is a negative answer", func(t *testing.T) {
		res, err := svc.LookupCertificate(pub, uuid.NewString())
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Empty(t, res.CertificateNumber)
	})

	t.Run("malformed id short-circuits", func(t *testing.T) {
		res, err := svc.LookupCertificate(pub, "not-a-uuid")
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})
}
