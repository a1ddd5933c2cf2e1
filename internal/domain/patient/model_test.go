package patient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/odonto/odonto/internal/platform/apperr"
)

func strPtr(s string) *string { return &s }

func validPatient() *Patient {
	return &Patient{
		DNI:       "45871236",
		Names:     "Rosa",
		Surnames:  "Huamán Torres",
		BirthDate: time.Date(1958, 8, 20, 0, 0, 0, 0, time.UTC),
		Allergies: []Allergy{{Name: "Penicilina", Severity: SeveritySevere, Reaction: strPtr("anafilaxia")}},
		Conditions: []MedicalCondition{
			{Name: "hipertension", Controlled: true},
		},
		Medications: []Medication{{Name: "Losartán", Dose: "50mg", Frequency: "c/24h"}},
		Habits:      &Habits{BrushingFrequency: BrushingTwice},
	}
}

func TestAgeAt(t *testing.T) {
	p := &Patient{BirthDate: time.Date(1958, 8, 20, 0, 0, 0, 0, time.UTC)}
	tests := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), 67},
		{time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), 68},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 67},
		{time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		if got := p.AgeAt(tt.at); got != tt.want {
			t.Errorf("AgeAt(%s) = %d, want %d", tt.at.Format(dateLayout), got, tt.want)
		}
	}

	if got := (&Patient{}).AgeAt(time.Now()); got != 0 {
		t.Errorf("expected 0 for missing birth date, got %d", got)
	}
	var nilPatient *Patient
	if got := nilPatient.AgeAt(time.Now()); got != 0 {
		t.Errorf("expected 0 for nil patient, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Patient)
		field  string
	}{
		{"valid", func(p *Patient) {}, ""},
		{"short dni", func(p *Patient) { p.DNI = "1234567" }, "dni"},
		{"non-numeric dni", func(p *Patient) { p.DNI = "4587123A" }, "dni"},
		{"missing names", func(p *Patient) { p.Names = "  " }, "nombres"},
		{"missing surnames", func(p *Patient) { p.Surnames = "" }, "apellidos"},
		{"bad severity", func(p *Patient) { p.Allergies[0].Severity = "grave" }, "alergias"},
		{"severe without reaction", func(p *Patient) { p.Allergies[0].Reaction = nil }, "alergias"},
		{"severe with blank reaction", func(p *Patient) { p.Allergies[0].Reaction = strPtr(" ") }, "alergias"},
		{"unnamed condition", func(p *Patient) { p.Conditions[0].Name = "" }, "condicionesMedicas"},
		{"too many medications", func(p *Patient) {
			p.Medications = make([]Medication, MaxMedications+1)
			for i := range p.Medications {
				p.Medications[i] = Medication{Name: "x"}
			}
		}, "medicamentosActuales"},
		{"negative cigarettes", func(p *Patient) { p.Habits.CigarettesPerDay = -1 }, "habitos.cigarrillosDia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPatient()
			tt.mutate(p)
			err := p.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestPatientUnmarshalJSON_Dates(t *testing.T) {
	var p Patient
	body := `{"dni":"45871236","nombres":"Rosa","apellidos":"Huamán","fechaNacimiento":"1958-08-20",
		"alergias":[{"alergia":"Penicilina","severidad":"severa"}],
		"habitos":{"fumador":true,"cigarrillosDia":25,"cepilladoFrecuencia":"1_vez"}}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.BirthDate.Equal(time.Date(1958, 8, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected birth date %v", p.BirthDate)
	}
	if p.Names != "Rosa" || len(p.Allergies) != 1 || p.Habits == nil || p.Habits.CigarettesPerDay != 25 {
		t.Errorf("fields not decoded: %+v", p)
	}

	if err := json.Unmarshal([]byte(`{"fechaNacimiento":"1958-08-20T00:00:00Z"}`), &p); err != nil {
		t.Errorf("expected RFC 3339 to be accepted: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"fechaNacimiento":"20/08/1958"}`), &p); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad date, got %v", err)
	}
}

func TestConsentState(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 6, 0)

	tests := []struct {
		name string
		c    Consent
		want ConsentState
	}{
		{"pending", Consent{}, ConsentPendingSignature},
		{"signed", Consent{Signed: true, ExpiresAt: &future}, ConsentSigned},
		{"expired", Consent{Signed: true, ExpiresAt: &past}, ConsentExpired},
		{"renewal", Consent{Signed: true, RenewalRequired: true}, ConsentRenewalRequired},
		{"revoked wins", Consent{Signed: true, Revoked: true, ExpiresAt: &past}, ConsentRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.State(now); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	expired := Consent{Signed: true, ExpiresAt: &past}
	if !expired.IsCurrent() {
		t.Error("an expired but signed, unrevoked consent is still current")
	}
	if (&Consent{Signed: true, Revoked: true}).IsCurrent() {
		t.Error("revoked consent is not current")
	}
}
