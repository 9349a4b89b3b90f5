package certificate

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/tenant"
)

// Compile-time interface checks.
var (
	_ Repository     = (*MemoryRepository)(nil)
	_ IssuedRegistry = (*MemoryRegistry)(nil)
)

// MemoryRepository implements Repository for tests and local development.
// Records are partitioned per namespace exactly like the schema-per-tenant
// store: a lookup under the wrong namespace misses, even by ID.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[tenant.Namespace]map[uuid.UUID]*Certificate
	hashes  map[tenant.Namespace]map[uuid.UUID]Hash
	numbers map[string]uuid.UUID // deployment-wide number index
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[tenant.Namespace]map[uuid.UUID]*Certificate),
		hashes:  make(map[tenant.Namespace]map[uuid.UUID]Hash),
		numbers: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, cert *Certificate) error {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records[ns] == nil {
		r.records[ns] = make(map[uuid.UUID]*Certificate)
	}
	if _, exists := r.records[ns][cert.ID]; exists {
		return nil // idempotent insert
	}
	if owner, taken := r.numbers[cert.Number]; taken && owner != cert.ID {
		return ErrDuplicateCertificateNumber
	}

	r.records[ns][cert.ID] = cert.Clone()
	r.numbers[cert.Number] = cert.ID
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cert, ok := r.records[ns][id]
	if !ok {
		return nil, ErrCertificateNotFound
	}
	return cert.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, cert *Certificate) error {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[ns][cert.ID]
	if !ok {
		return ErrCertificateNotFound
	}
	// The namespace column never changes after creation.
	cert.Namespace = stored.Namespace
	r.records[ns][cert.ID] = cert.Clone()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.records[ns][id]
	if !ok {
		return ErrCertificateNotFound
	}
	delete(r.numbers, cert.Number)
	delete(r.records[ns], id)
	return nil
}

// NumberExists is deployment-wide and deliberately does not require an
// active tenant: numbers are unique across every namespace, and the engine
// checks candidates before it knows which schema the record lands in.
func (r *MemoryRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, taken := r.numbers[number]
	return taken, nil
}

func (r *MemoryRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]*Certificate, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Certificate
	for _, cert := range r.records[ns] {
		if cert.Status != status {
			continue
		}
		out = append(out, cert.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateHash(ctx context.Context, h Hash) error {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hashes[ns] == nil {
		r.hashes[ns] = make(map[uuid.UUID]Hash)
	}
	r.hashes[ns][h.CertificateID] = h
	return nil
}

func (r *MemoryRepository) GetHash(ctx context.Context, certID uuid.UUID) (Hash, error) {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return Hash{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hashes[ns][certID]
	if !ok {
		return Hash{}, ErrHashRecordNotFound
	}
	return h, nil
}

func (r *MemoryRepository) DeleteHash(ctx context.Context, certID uuid.UUID) error {
	ns, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.hashes[ns], certID)
	return nil
}

// MemoryRegistry implements IssuedRegistry in memory. Unlike the
// repository it is deliberately namespace-free: the registry is the shared,
// PII-free index the public verification surface reads.
type MemoryRegistry struct {
	mu     sync.RWMutex
	byHash map[string]IssuedRecord
	byCert map[uuid.UUID]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byHash: make(map[string]IssuedRecord),
		byCert: make(map[uuid.UUID]string),
	}
}

func (r *MemoryRegistry) Record(ctx context.Context, rec IssuedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHash[rec.Hash] = rec
	r.byCert[rec.CertificateID] = rec.Hash
	return nil
}

func (r *MemoryRegistry) FindByHash(ctx context.Context, hashValue string) (IssuedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byHash[hashValue]
	if !ok {
		return IssuedRecord{}, ErrHashRecordNotFound
	}
	return rec, nil
}

func (r *MemoryRegistry) FindByCertificate(ctx context.Context, certID uuid.UUID) (IssuedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byCert[certID]
	if !ok {
		return IssuedRecord{}, ErrHashRecordNotFound
	}
	return r.byHash[h], nil
}

func (r *MemoryRegistry) Remove(ctx context.Context, certID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byCert[certID]; ok {
		delete(r.byHash, h)
		delete(r.byCert, certID)
	}
	return nil
}
