package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/hipaa"
	"github.com/odonto/odonto/internal/platform/metrics"
)

// PatientReader loads the patient a consent belongs to.
type PatientReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Manager owns the consent lifecycle. Every operation goes through the
// compliance gate before it touches storage, and transitions on the same
// consent are serialized.
type Manager struct {
	repo     Repository
	patients PatientReader
	gate     *auth.Gate
	locks    *keyedMutex
	logger   zerolog.Logger
	now      func() time.Time
	window   time.Duration
}

func NewManager(repo Repository, patients PatientReader, gate *auth.Gate, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		patients: patients,
		gate:     gate,
		locks:    newKeyedMutex(),
		logger:   logger.With().Str("component", "consent").Logger(),
		now:      time.Now,
		window:   DefaultExpiryWindow,
	}
}

// WithExpiryWindow sets how far ahead expiring consents are reported.
func (m *Manager) WithExpiryWindow(d time.Duration) *Manager {
	if d > 0 {
		m.window = d
	}
	return m
}

func (m *Manager) clock() time.Time { return m.now().UTC() }

// Create opens a pending consent of the given catalog type for a patient.
func (m *Manager) Create(ctx context.Context, user auth.User, patientID uuid.UUID, consentType string) (*patient.Consent, error) {
	t, ok := Lookup(consentType)
	if !ok {
		return nil, apperr.Validation("tipo", "unknown consent type %q", consentType)
	}
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionCreateConsent, auth.DataConsent,
		func(ctx context.Context) (*patient.Consent, error) {
			if _, err := m.patients.GetByID(ctx, patientID); err != nil {
				return nil, err
			}
			c := &patient.Consent{
				ID:        uuid.New(),
				PatientID: patientID,
				Type:      t.Name,
				Date:      m.clock(),
				CreatedBy: user.ID,
			}
			if err := m.repo.Create(ctx, c); err != nil {
				return nil, err
			}
			metrics.RecordConsentTransition("none", string(patient.ConsentPendingSignature))
			m.logger.Info().
				Str("consent_id", c.ID.String()).
				Str("patient_id", patientID.String()).
				Str("tipo", c.Type).
				Msg("consent created")
			return c, nil
		})
}

// Sign records the patient's signature on a pending consent.
func (m *Manager) Sign(ctx context.Context, user auth.User, patientID, consentID uuid.UUID, signature string) (*patient.Consent, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionSignConsent, auth.DataConsent,
		func(ctx context.Context) (*patient.Consent, error) {
			var out *patient.Consent
			err := m.transition(ctx, patientID, consentID, func(c *patient.Consent, now time.Time) error {
				if err := sign(c, signature, now); err != nil {
					return err
				}
				out = c
				return nil
			})
			return out, err
		})
}

// Revoke withdraws a signed consent. Revocation is terminal.
func (m *Manager) Revoke(ctx context.Context, user auth.User, patientID, consentID uuid.UUID) (*RevocationImpact, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionRevokeConsent, auth.DataConsent,
		func(ctx context.Context) (*RevocationImpact, error) {
			var impact *RevocationImpact
			err := m.transition(ctx, patientID, consentID, func(c *patient.Consent, now time.Time) error {
				var err error
				impact, err = revoke(c, now)
				return err
			})
			if err != nil {
				return nil, err
			}
			m.logger.Warn().
				Str("consent_id", consentID.String()).
				Str("patient_id", patientID.String()).
				Str("tipo", impact.Type).
				Strs("required_actions", impact.RequiredActions).
				Msg("consent revoked")
			return impact, nil
		})
}

// ScheduleRenewal flags a signed consent for renewal on date.
func (m *Manager) ScheduleRenewal(ctx context.Context, user auth.User, patientID, consentID uuid.UUID, date time.Time) (*patient.Consent, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionScheduleRenewal, auth.DataConsent,
		func(ctx context.Context) (*patient.Consent, error) {
			var out *patient.Consent
			err := m.transition(ctx, patientID, consentID, func(c *patient.Consent, now time.Time) error {
				if err := scheduleRenewal(c, date.UTC(), now); err != nil {
					return err
				}
				out = c
				return nil
			})
			return out, err
		})
}

// transition loads the consent under its lock, applies fn to a working
// copy and persists the copy only when fn succeeds.
func (m *Manager) transition(ctx context.Context, patientID, consentID uuid.UUID, fn func(*patient.Consent, time.Time) error) error {
	unlock := m.locks.Lock(consentID)
	defer unlock()

	c, err := m.repo.GetByID(ctx, consentID)
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return apperr.Validation("consentId", "consent %s not found", consentID)
		}
		return err
	}
	if c.PatientID != patientID {
		return apperr.Validation("consentId", "consent %s does not belong to patient %s", consentID, patientID)
	}

	now := m.clock()
	from := c.State(now)
	work := *c
	if err := fn(&work, now); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, &work); err != nil {
		return err
	}
	to := work.State(now)
	metrics.RecordConsentTransition(string(from), string(to))
	m.logger.Info().
		Str("consent_id", consentID.String()).
		Str("patient_id", patientID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("consent transition")
	return nil
}

// List returns every consent on file for the patient.
func (m *Manager) List(ctx context.Context, user auth.User, patientID uuid.UUID) ([]patient.Consent, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionRead, auth.DataConsent,
		func(ctx context.Context) ([]patient.Consent, error) {
			return m.repo.ListByPatient(ctx, patientID)
		})
}

// Status reports whether the patient holds every consent the procedure
// requires.
func (m *Manager) Status(ctx context.Context, user auth.User, patientID uuid.UUID, procedure string) (*Status, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionCheckConsentStatus, auth.DataConsent,
		func(ctx context.Context) (*Status, error) {
			p, err := m.withConsents(ctx, patientID)
			if err != nil {
				return nil, err
			}
			st := CheckStatus(p, procedure, m.clock(), m.window)
			if !st.AllRequiredSigned {
				m.logger.Info().
					Str("patient_id", patientID.String()).
					Str("procedure", procedure).
					Int("missing", len(st.MissingConsents)).
					Msg("required consents missing")
			}
			return &st, nil
		})
}

// ExpiringSoon lists the patient's current consents that expire within the
// configured window.
func (m *Manager) ExpiringSoon(ctx context.Context, user auth.User, patientID uuid.UUID) ([]patient.Consent, error) {
	return auth.Run(ctx, m.gate, user, patientID, hipaa.ActionCheckConsentStatus, auth.DataConsent,
		func(ctx context.Context) ([]patient.Consent, error) {
			consents, err := m.repo.ListByPatient(ctx, patientID)
			if err != nil {
				return nil, err
			}
			return ExpiringSoon(consents, m.clock(), m.window), nil
		})
}

func (m *Manager) withConsents(ctx context.Context, patientID uuid.UUID) (*patient.Patient, error) {
	p, err := m.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	consents, err := m.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	p.Consents = consents
	return p, nil
}
