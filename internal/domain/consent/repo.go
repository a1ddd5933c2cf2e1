package consent

import (
	"context"

	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/domain/patient"
)

type Repository interface {
	Create(ctx context.Context, c *patient.Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Consent, error)
	Update(ctx context.Context, c *patient.Consent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]patient.Consent, error)
}
