package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const uniqueViolation = "23505"

// writeError maps a duplicate DNI onto the same validation error the memory
// store returns.
func writeError(err error, dni string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Validation("dni", "patient with dni %s already exists", dni)
	}
	return err
}

const patientCols = `id, dni, nombres, apellidos, fecha_nacimiento, alergias, condiciones,
	medicamentos, tipo_sangre, peso, altura, habitos, puntuacion_riesgo, created_at, updated_at`

// clinicalJSON holds the JSONB encodings of a patient's clinical lists.
type clinicalJSON struct {
	allergies, conditions, medications, habits []byte
}

func encodeClinical(p *Patient) (clinicalJSON, error) {
	var out clinicalJSON
	var err error
	if out.allergies, err = json.Marshal(nonNil(p.Allergies)); err != nil {
		return out, fmt.Errorf("encode alergias: %w", err)
	}
	if out.conditions, err = json.Marshal(nonNil(p.Conditions)); err != nil {
		return out, fmt.Errorf("encode condiciones: %w", err)
	}
	if out.medications, err = json.Marshal(nonNil(p.Medications)); err != nil {
		return out, fmt.Errorf("encode medicamentos: %w", err)
	}
	if p.Habits != nil {
		if out.habits, err = json.Marshal(p.Habits); err != nil {
			return out, fmt.Errorf("encode habitos: %w", err)
		}
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p         Patient
		birth     *time.Time
		bloodType *string
		weight    *float64
		height    *float64
		raw       clinicalJSON
	)
	err := row.Scan(&p.ID, &p.DNI, &p.Names, &p.Surnames, &birth, &raw.allergies, &raw.conditions,
		&raw.medications, &bloodType, &weight, &height, &raw.habits, &p.RiskScore, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birth != nil {
		p.BirthDate = *birth
	}
	if bloodType != nil {
		p.BloodType = *bloodType
	}
	if weight != nil {
		p.WeightKg = *weight
	}
	if height != nil {
		p.HeightCm = *height
	}
	if err := json.Unmarshal(raw.allergies, &p.Allergies); err != nil {
		return nil, fmt.Errorf("decode alergias: %w", err)
	}
	if err := json.Unmarshal(raw.conditions, &p.Conditions); err != nil {
		return nil, fmt.Errorf("decode condiciones: %w", err)
	}
	if err := json.Unmarshal(raw.medications, &p.Medications); err != nil {
		return nil, fmt.Errorf("decode medicamentos: %w", err)
	}
	if len(raw.habits) > 0 {
		p.Habits = &Habits{}
		if err := json.Unmarshal(raw.habits, p.Habits); err != nil {
			return nil, fmt.Errorf("decode habitos: %w", err)
		}
	}
	return &p, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	enc, err := encodeClinical(p)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, dni, nombres, apellidos, fecha_nacimiento, alergias, condiciones,
			medicamentos, tipo_sangre, peso, altura, habitos, puntuacion_riesgo)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.DNI, p.Names, p.Surnames, nullableDate(p.BirthDate), enc.allergies, enc.conditions,
		enc.medications, p.BloodType, p.WeightKg, p.HeightCm, enc.habits, p.RiskScore,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return writeError(err, p.DNI)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id.String())
	}
	return p, err
}

func (r *patientRepoPG) GetByDNI(ctx context.Context, dni string) (*Patient, error) {
	p, err := r.scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE dni = $1`, dni))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", dni)
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	enc, err := encodeClinical(p)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET dni=$2, nombres=$3, apellidos=$4, fecha_nacimiento=$5, alergias=$6,
			condiciones=$7, medicamentos=$8, tipo_sangre=NULLIF($9,''), peso=$10, altura=$11,
			habitos=$12, puntuacion_riesgo=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DNI, p.Names, p.Surnames, nullableDate(p.BirthDate), enc.allergies,
		enc.conditions, enc.medications, p.BloodType, p.WeightKg, p.HeightCm, enc.habits, p.RiskScore,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient", p.ID.String())
	}
	return writeError(err, p.DNI)
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY apellidos, nombres LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
