package patient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/platform/apperr"
)

// MemoryRepository keeps patients in process memory. It backs development
// mode and the evaluate command.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Patient
	byDNI map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]*Patient),
		byDNI: make(map[string]uuid.UUID),
	}
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	cp.Allergies = append([]Allergy(nil), p.Allergies...)
	cp.Conditions = append([]MedicalCondition(nil), p.Conditions...)
	cp.Medications = append([]Medication(nil), p.Medications...)
	cp.Consents = append([]Consent(nil), p.Consents...)
	if p.Habits != nil {
		h := *p.Habits
		cp.Habits = &h
	}
	return &cp
}

func (r *MemoryRepository) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byDNI[p.DNI]; taken {
		return apperr.Validation("dni", "patient with dni %s already exists", p.DNI)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.byID[p.ID] = clonePatient(p)
	r.byDNI[p.DNI] = p.ID
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("patient", id.String())
	}
	return clonePatient(p), nil
}

func (r *MemoryRepository) GetByDNI(ctx context.Context, dni string) (*Patient, error) {
	r.mu.RLock()
	id, ok := r.byDNI[dni]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("patient", dni)
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[p.ID]
	if !ok {
		return apperr.NotFound("patient", p.ID.String())
	}
	if owner, taken := r.byDNI[p.DNI]; taken && owner != p.ID {
		return apperr.Validation("dni", "patient with dni %s already exists", p.DNI)
	}
	delete(r.byDNI, old.DNI)
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	r.byID[p.ID] = clonePatient(p)
	r.byDNI[p.DNI] = p.ID
	return nil
}

func (r *MemoryRepository) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	all := make([]*Patient, 0, len(r.byID))
	for _, p := range r.byID {
		all = append(all, clonePatient(p))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Surnames != all[j].Surnames {
			return all[i].Surnames < all[j].Surnames
		}
		return all[i].Names < all[j].Names
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
