package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/hipaa"
)

// Scorer computes the risk score stored with a patient.
type Scorer func(p *Patient, now time.Time) int

// Service is the patient CRUD collaborator. Every write recomputes the
// stored risk score so it always matches the clinical fields.
type Service struct {
	repo   PatientRepository
	gate   *auth.Gate
	score  Scorer
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo PatientRepository, gate *auth.Gate, score Scorer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		score:  score,
		logger: logger.With().Str("component", "patient").Logger(),
		now:    time.Now,
	}
}

// prepare validates p and refreshes its derived score.
func (s *Service) prepare(p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.RiskScore = s.score(p, s.now().UTC())
	return nil
}

func (s *Service) Create(ctx context.Context, user auth.User, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return s.gate.WithAudit(ctx, user, p.ID, hipaa.ActionCreate, auth.DataMedicalHistory, func(ctx context.Context) error {
		if err := s.prepare(p); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		s.logger.Info().
			Str("patient_id", p.ID.String()).
			Int("risk_score", p.RiskScore).
			Msg("patient created")
		return nil
	})
}

func (s *Service) Get(ctx context.Context, user auth.User, id uuid.UUID) (*Patient, error) {
	return auth.Run(ctx, s.gate, user, id, hipaa.ActionRead, auth.DataMedicalHistory,
		func(ctx context.Context) (*Patient, error) {
			return s.repo.GetByID(ctx, id)
		})
}

// FindByDNI resolves a national ID to a patient. The gate runs against the
// resolved patient, so an unknown DNI is reported before any audit entry.
func (s *Service) FindByDNI(ctx context.Context, user auth.User, dni string) (*Patient, error) {
	found, err := s.repo.GetByDNI(ctx, dni)
	if err != nil {
		return nil, err
	}
	return auth.Run(ctx, s.gate, user, found.ID, hipaa.ActionRead, auth.DataMedicalHistory,
		func(context.Context) (*Patient, error) {
			return found, nil
		})
}

func (s *Service) Update(ctx context.Context, user auth.User, p *Patient) error {
	return s.gate.WithAudit(ctx, user, p.ID, hipaa.ActionUpdate, auth.DataMedicalHistory, func(ctx context.Context) error {
		if err := s.prepare(p); err != nil {
			return err
		}
		return s.repo.Update(ctx, p)
	})
}

// List pages through all patients. Patients never see the roster.
func (s *Service) List(ctx context.Context, user auth.User, limit, offset int) ([]*Patient, int, error) {
	type page struct {
		items []*Patient
		total int
	}
	res, err := auth.Run(ctx, s.gate, user, uuid.Nil, hipaa.ActionRead, auth.DataMedicalHistory,
		func(ctx context.Context) (page, error) {
			items, total, err := s.repo.List(ctx, limit, offset)
			return page{items, total}, err
		})
	return res.items, res.total, err
}
