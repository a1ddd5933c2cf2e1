package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/db"
)

type consentRepoPG struct{ pool *pgxpool.Pool }

func NewConsentRepoPG(pool *pgxpool.Pool) Repository { return &consentRepoPG{pool: pool} }

const consentCols = `id, patient_id, tipo, firmado, fecha, fecha_firma, vencimiento, revocado,
	fecha_revocacion, renovacion_requerida, renovacion_programada, signature_data, created_by, updated_at`

func scanConsent(row pgx.Row) (*patient.Consent, error) {
	var (
		c         patient.Consent
		signature *string
		createdBy *string
	)
	err := row.Scan(&c.ID, &c.PatientID, &c.Type, &c.Signed, &c.Date, &c.SignedAt, &c.ExpiresAt,
		&c.Revoked, &c.RevokedAt, &c.RenewalRequired, &c.RenewalScheduledFor, &signature, &createdBy, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if signature != nil {
		c.SignatureData = *signature
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	return &c, nil
}

func (r *consentRepoPG) Create(ctx context.Context, c *patient.Consent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consent (id, patient_id, tipo, firmado, fecha, fecha_firma, vencimiento, revocado,
			fecha_revocacion, renovacion_requerida, renovacion_programada, signature_data, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),NULLIF($13,''))
		RETURNING updated_at`,
		c.ID, c.PatientID, c.Type, c.Signed, c.Date, c.SignedAt, c.ExpiresAt, c.Revoked,
		c.RevokedAt, c.RenewalRequired, c.RenewalScheduledFor, c.SignatureData, c.CreatedBy,
	).Scan(&c.UpdatedAt)
}

func (r *consentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*patient.Consent, error) {
	c, err := scanConsent(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+consentCols+` FROM consent WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("consent", id.String())
	}
	return c, err
}

// Update never clears revocado: the row-level constraint and the WHERE
// clause keep a revoked consent terminal even if a caller races.
func (r *consentRepoPG) Update(ctx context.Context, c *patient.Consent) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE consent SET firmado=$2, fecha_firma=$3, vencimiento=$4, revocado=$5, fecha_revocacion=$6,
			renovacion_requerida=$7, renovacion_programada=$8, signature_data=NULLIF($9,''), updated_at=NOW()
		WHERE id = $1 AND NOT revocado
		RETURNING updated_at`,
		c.ID, c.Signed, c.SignedAt, c.ExpiresAt, c.Revoked, c.RevokedAt,
		c.RenewalRequired, c.RenewalScheduledFor, c.SignatureData,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.State(entity, string(patient.ConsentRevoked), "updated")
	}
	return err
}

func (r *consentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]patient.Consent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+consentCols+` FROM consent WHERE patient_id = $1 ORDER BY fecha, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []patient.Consent{}
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
