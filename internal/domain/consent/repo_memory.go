package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/apperr"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]patient.Consent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]patient.Consent)}
}

func (r *MemoryRepository) Create(_ context.Context, c *patient.Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UpdatedAt = time.Now().UTC()
	r.byID[c.ID] = *c
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*patient.Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("consent", id.String())
	}
	return &c, nil
}

func (r *MemoryRepository) Update(_ context.Context, c *patient.Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		return apperr.NotFound("consent", c.ID.String())
	}
	c.UpdatedAt = time.Now().UTC()
	r.byID[c.ID] = *c
	return nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]patient.Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []patient.Consent{}
	for _, c := range r.byID {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
