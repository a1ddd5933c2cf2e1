package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/hipaa"
	"github.com/odonto/odonto/internal/platform/metrics"
)

// Gate runs medical-data operations behind an access check and an awaited
// audit append.
type Gate struct {
	log    hipaa.AuditLog
	logger zerolog.Logger
	now    func() time.Time
}

func NewGate(log hipaa.AuditLog, logger zerolog.Logger) *Gate {
	return &Gate{
		log:    log,
		logger: logger.With().Str("component", "compliance-gate").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the clock used to timestamp audit entries.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Authorize checks access and records the attempt. It returns an
// *apperr.AuthorizationError when denied, or the audit error when the entry
// could not be written; in both cases the caller must not proceed.
func (g *Gate) Authorize(ctx context.Context, user User, patientID uuid.UUID, action string, kind DataKind) error {
	decision := CheckAccess(user, patientID, kind)

	entry := &hipaa.AuditEntry{
		Timestamp:    g.now(),
		UserID:       user.ID,
		Role:         string(user.Role),
		PatientID:    patientID,
		Action:       action,
		DataAccessed: string(kind),
		SessionID:    user.SessionID,
		Outcome:      hipaa.OutcomeAllowed,
		Reason:       decision.Reason,
	}
	if !decision.Allowed {
		entry.Outcome = hipaa.OutcomeDenied
	}
	if err := g.log.Append(ctx, entry); err != nil {
		g.logger.Error().Err(err).
			Str("user_id", user.ID).
			Str("action", action).
			Msg("audit append failed, operation blocked")
		return fmt.Errorf("audit access: %w", err)
	}

	metrics.RecordAccessDecision(string(user.Role), string(kind), decision.Allowed)
	metrics.RecordAuditEntry(string(entry.Outcome), entry.Flags)
	if len(entry.Flags) > 0 {
		g.logger.Warn().
			Str("user_id", user.ID).
			Str("role", string(user.Role)).
			Str("patient_id", patientID.String()).
			Str("action", action).
			Strs("flags", entry.Flags).
			Int64("sequence", entry.Sequence).
			Msg("audit anomaly")
	}

	if !decision.Allowed {
		return &apperr.AuthorizationError{
			UserID:    user.ID,
			PatientID: patientID.String(),
			DataKind:  string(kind),
			Reason:    decision.Reason,
		}
	}
	return nil
}

// WithAudit runs op only after access was granted and audited.
func (g *Gate) WithAudit(ctx context.Context, user User, patientID uuid.UUID, action string, kind DataKind, op func(context.Context) error) error {
	if err := g.Authorize(ctx, user, patientID, action, kind); err != nil {
		return err
	}
	return op(ctx)
}

// Run is WithAudit for operations that produce a value.
func Run[T any](ctx context.Context, g *Gate, user User, patientID uuid.UUID, action string, kind DataKind, op func(context.Context) (T, error)) (T, error) {
	if err := g.Authorize(ctx, user, patientID, action, kind); err != nil {
		var zero T
		return zero, err
	}
	return op(ctx)
}
