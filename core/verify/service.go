// Package verify answers certificate authenticity queries.
//
// Verify is tenant-scoped and compares a supplied hash against a specific
// certificate. Lookup and LookupCertificate are the public surfaces: they
// take only a hash or a certificate ID (the latter is what QR badges carry),
// need no tenant context, and answer from the shared issued registry,
// returning certificate number and issuance time but never recipient data.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/hash"
)

// Result is the public answer to a hash lookup. It deliberately excludes
// recipient data so the endpoint cannot leak PII.
type Result struct {
	Valid             bool       `json:"valid"`
	CertificateNumber string     `json:"certificateNumber,omitempty"`
	IssuedAt          *time.Time `json:"issuedAt,omitempty"`
}

// Service performs hash verification.
type Service struct {
	repo     certificate.Repository
	registry certificate.IssuedRegistry
}

func NewService(repo certificate.Repository, registry certificate.IssuedRegistry) (*Service, error) {
	if repo == nil {
		return nil, errors.New("verify: repository cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("verify: registry cannot be nil")
	}
	return &Service{repo: repo, registry: registry}, nil
}

// Verify reports whether the certificate is ISSUED and its stored hash
// equals the supplied value exactly. Requires a tenant context, since it
// reads the tenant-scoped record.
func (s *Service) Verify(ctx context.Context, certID uuid.UUID, suppliedHash string) (bool, error) {
	cert, err := s.repo.Get(ctx, certID)
	if err != nil {
		return false, err
	}
	if cert.Status != certificate.StatusIssued {
		return false, nil
	}
	return hash.Matches(cert.Hash, suppliedHash), nil
}

// Lookup answers the public verification query. An unknown hash is a valid
// negative answer, not an error.
func (s *Service) Lookup(ctx context.Context, hashValue string) (Result, error) {
	if len(hashValue) != hash.EncodedLength {
		return Result{}, nil
	}

	rec, err := s.registry.FindByHash(ctx, hashValue)
	if errors.Is(err, certificate.ErrHashRecordNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	issuedAt := rec.IssuedAt
	return Result{
		Valid:             true,
		CertificateNumber: rec.Number,
		IssuedAt:          &issuedAt,
	}, nil
}

// LookupCertificate answers the public verification query for a certificate
// ID, the identifier encoded in rendered QR badges. A malformed or unknown
// ID is a valid negative answer, not an error.
func (s *Service) LookupCertificate(ctx context.Context, id string) (Result, error) {
	certID, err := uuid.Parse(id)
	if err != nil {
		return Result{}, nil
	}

	rec, err := s.registry.FindByCertificate(ctx, certID)
	if errors.Is(err, certificate.ErrHashRecordNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	issuedAt := rec.IssuedAt
	return Result{
		Valid:             true,
		CertificateNumber: rec.Number,
		IssuedAt:          &issuedAt,
	}, nil
}
