package cds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/hipaa"
	"github.com/odonto/odonto/internal/platform/metrics"
)

// PatientReader loads patient snapshots for evaluation.
type PatientReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Evaluation is the full engine output for one patient snapshot.
type Evaluation struct {
	PatientID   uuid.UUID `json:"patientId"`
	Score       int       `json:"score"`
	Level       string    `json:"level"`
	StoredScore int       `json:"storedScore"`
	Stale       bool      `json:"stale"`
	Alerts      []Alert   `json:"alerts,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Evaluate scores p and derives its alerts at the given instant.
func Evaluate(p *patient.Patient, at time.Time) Evaluation {
	ev := assess(p, at)
	ev.Alerts = GenerateAlerts(p, at)
	return ev
}

func assess(p *patient.Patient, at time.Time) Evaluation {
	score := ComputeRiskScoreAt(p, at)
	ev := Evaluation{Score: score, Level: RiskLevel(score), EvaluatedAt: at}
	if p != nil {
		ev.PatientID = p.ID
		ev.StoredScore = p.RiskScore
		ev.Stale = p.RiskScore != score
	}
	return ev
}

// Service exposes the rule engines behind the compliance gate.
type Service struct {
	patients PatientReader
	gate     *auth.Gate
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientReader, gate *auth.Gate, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		gate:     gate,
		logger:   logger.With().Str("component", "cds").Logger(),
		now:      time.Now,
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// RiskScore evaluates the patient's current risk.
func (s *Service) RiskScore(ctx context.Context, user auth.User, patientID uuid.UUID) (*Evaluation, error) {
	return auth.Run(ctx, s.gate, user, patientID, hipaa.ActionEvaluateRisk, auth.DataMedicalHistory,
		func(ctx context.Context) (*Evaluation, error) {
			p, err := s.load(ctx, patientID)
			if err != nil {
				return nil, err
			}
			ev := assess(p, s.now().UTC())
			metrics.RecordRiskScore(ev.Score)
			if ev.Stale {
				s.logger.Warn().
					Str("patient_id", patientID.String()).
					Int("stored", ev.StoredScore).
					Int("computed", ev.Score).
					Msg("stored risk score is stale")
			}
			return &ev, nil
		})
}

// Alerts derives the patient's current medical alerts.
func (s *Service) Alerts(ctx context.Context, user auth.User, patientID uuid.UUID) ([]Alert, error) {
	return auth.Run(ctx, s.gate, user, patientID, hipaa.ActionGenerateAlerts, auth.DataMedicalHistory,
		func(ctx context.Context) ([]Alert, error) {
			p, err := s.load(ctx, patientID)
			if err != nil {
				return nil, err
			}
			alerts := GenerateAlerts(p, s.now().UTC())
			for _, a := range alerts {
				metrics.RecordAlert(string(a.Type), string(a.Priority))
			}
			return alerts, nil
		})
}
