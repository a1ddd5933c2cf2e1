package patient

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/platform/apperr"
)

// Severity is the clinical severity recorded for an allergy.
type Severity string

const (
	SeverityMild     Severity = "leve"
	SeverityModerate Severity = "moderada"
	SeveritySevere   Severity = "severa"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// BrushingFrequency is the self-reported daily tooth-brushing frequency.
type BrushingFrequency string

const (
	BrushingNever  BrushingFrequency = "nunca"
	BrushingOnce   BrushingFrequency = "1_vez"
	BrushingTwice  BrushingFrequency = "2_veces"
	BrushingThrice BrushingFrequency = "3_veces"
)

// MaxMedications bounds the medication list accepted at data entry.
const MaxMedications = 30

var dniPattern = regexp.MustCompile(`^[0-9]{8}$`)

// Allergy is a recorded patient allergy.
type Allergy struct {
	Name     string   `json:"alergia"`
	Severity Severity `json:"severidad"`
	Reaction *string  `json:"reaccion,omitempty"`
}

// IsSevere reports whether the allergy is recorded as severe.
func (a Allergy) IsSevere() bool { return a.Severity == SeveritySevere }

// MedicalCondition is a diagnosed condition and whether it is under control.
type MedicalCondition struct {
	Name        string  `json:"condicion"`
	Controlled  bool    `json:"controlado"`
	Medications *string `json:"medicamentos,omitempty"`
}

// Medication is a current prescription. Interaction matching uses the
// lower-cased Name only.
type Medication struct {
	Name      string `json:"medicamento"`
	Dose      string `json:"dosis"`
	Frequency string `json:"frecuencia"`
}

// Habits groups lifestyle flags that feed the risk score.
type Habits struct {
	Smoker            bool              `json:"fumador"`
	CigarettesPerDay  int               `json:"cigarrillosDia,omitempty"`
	Alcohol           bool              `json:"alcohol"`
	BrushingFrequency BrushingFrequency `json:"cepilladoFrecuencia,omitempty"`
}

// Patient is the record the engine evaluates. The engine treats it as an
// immutable snapshot per call.
type Patient struct {
	ID          uuid.UUID          `json:"id"`
	DNI         string             `json:"dni"`
	Names       string             `json:"nombres"`
	Surnames    string             `json:"apellidos"`
	BirthDate   time.Time          `json:"fechaNacimiento"`
	Allergies   []Allergy          `json:"alergias,omitempty"`
	Conditions  []MedicalCondition `json:"condicionesMedicas,omitempty"`
	Medications []Medication       `json:"medicamentosActuales,omitempty"`
	BloodType   string             `json:"tipoSangre,omitempty"`
	WeightKg    float64            `json:"peso,omitempty"`
	HeightCm    float64            `json:"altura,omitempty"`
	Habits      *Habits            `json:"habitos,omitempty"`
	RiskScore   int                `json:"puntuacionRiesgo"`
	Consents    []Consent          `json:"consentimientos,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

const dateLayout = "2006-01-02"

// UnmarshalJSON accepts fechaNacimiento either as a plain date or as an
// RFC 3339 timestamp.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type alias Patient
	aux := struct {
		*alias
		BirthDate string `json:"fechaNacimiento"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.BirthDate = time.Time{}
	if aux.BirthDate == "" {
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, aux.BirthDate); err == nil {
			p.BirthDate = t
			return nil
		}
	}
	return apperr.Validation("fechaNacimiento", "invalid date %q", aux.BirthDate)
}

// FullName returns "Names Surnames".
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.Names + " " + p.Surnames)
}

// AgeAt returns the patient's age in whole years at t. A missing birth date
// yields 0.
func (p *Patient) AgeAt(t time.Time) int {
	if p == nil || p.BirthDate.IsZero() || t.Before(p.BirthDate) {
		return 0
	}
	age := t.Year() - p.BirthDate.Year()
	if t.Month() < p.BirthDate.Month() || (t.Month() == p.BirthDate.Month() && t.Day() < p.BirthDate.Day()) {
		age--
	}
	return age
}

// Validate enforces the data-entry rules for a patient record.
func (p *Patient) Validate() error {
	if !dniPattern.MatchString(p.DNI) {
		return apperr.Validation("dni", "must be exactly 8 digits")
	}
	if strings.TrimSpace(p.Names) == "" {
		return apperr.Validation("nombres", "is required")
	}
	if strings.TrimSpace(p.Surnames) == "" {
		return apperr.Validation("apellidos", "is required")
	}
	for i, a := range p.Allergies {
		if strings.TrimSpace(a.Name) == "" {
			return apperr.Validation("alergias", "entry %d has no name", i)
		}
		if !a.Severity.Valid() {
			return apperr.Validation("alergias", "entry %d has invalid severity %q", i, a.Severity)
		}
		if a.IsSevere() && (a.Reaction == nil || strings.TrimSpace(*a.Reaction) == "") {
			return apperr.Validation("alergias", "severe allergy %q requires a reaction", a.Name)
		}
	}
	for i, c := range p.Conditions {
		if strings.TrimSpace(c.Name) == "" {
			return apperr.Validation("condicionesMedicas", "entry %d has no name", i)
		}
	}
	if len(p.Medications) > MaxMedications {
		return apperr.Validation("medicamentosActuales", "at most %d medications allowed", MaxMedications)
	}
	for i, m := range p.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return apperr.Validation("medicamentosActuales", "entry %d has no name", i)
		}
	}
	if p.Habits != nil && p.Habits.CigarettesPerDay < 0 {
		return apperr.Validation("habitos.cigarrillosDia", "must not be negative")
	}
	return nil
}
