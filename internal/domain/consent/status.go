package consent

import (
	"time"

	"github.com/odonto/odonto/internal/domain/patient"
)

// DefaultExpiryWindow is how far ahead ExpiringSoon looks.
const DefaultExpiryWindow = 30 * 24 * time.Hour

// Status answers whether a patient may undergo a procedure.
type Status struct {
	Procedure         string            `json:"procedure"`
	AllRequiredSigned bool              `json:"allRequiredSigned"`
	RequiredConsents  []ConsentType     `json:"requiredConsents"`
	MissingConsents   []ConsentType     `json:"missingConsents"`
	ExpiringSoon      []patient.Consent `json:"expiringSoon"`
}

// satisfies is the single place that decides whether a consent record
// covers a required type.
func satisfies(c *patient.Consent, t ConsentType) bool {
	return c.IsCurrent() && c.Type == t.Name
}

// CheckStatus compares the patient's consents with those the procedure
// requires. window bounds ExpiringSoon; zero uses DefaultExpiryWindow.
func CheckStatus(p *patient.Patient, procedure string, now time.Time, window time.Duration) Status {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	var consents []patient.Consent
	if p != nil {
		consents = p.Consents
	}

	required := ResolveRequired(procedure)
	st := Status{
		Procedure:        procedure,
		RequiredConsents: required,
		MissingConsents:  []ConsentType{},
		ExpiringSoon:     []patient.Consent{},
	}
	for _, t := range required {
		found := false
		for i := range consents {
			if satisfies(&consents[i], t) {
				found = true
				break
			}
		}
		if !found {
			st.MissingConsents = append(st.MissingConsents, t)
		}
	}
	st.AllRequiredSigned = len(st.MissingConsents) == 0
	st.ExpiringSoon = ExpiringSoon(consents, now, window)
	return st
}

// ExpiringSoon returns the current consents whose expiry falls in
// [now, now+window].
func ExpiringSoon(consents []patient.Consent, now time.Time, window time.Duration) []patient.Consent {
	limit := now.Add(window)
	out := []patient.Consent{}
	for _, c := range consents {
		if !c.IsCurrent() || c.ExpiresAt == nil {
			continue
		}
		if !c.ExpiresAt.Before(now) && !c.ExpiresAt.After(limit) {
			out = append(out, c)
		}
	}
	return out
}
