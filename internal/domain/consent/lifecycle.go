package consent

import (
	"strings"
	"time"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/apperr"
)

const entity = "consent"

// Follow-up actions required whenever a consent is revoked.
var revocationActions = []string{
	"notify_treating_dentist",
	"suspend_related_treatments",
	"update_patient_record",
	"request_new_consent_if_needed",
}

// RevocationImpact describes what a revocation affects.
type RevocationImpact struct {
	ConsentID          string    `json:"consentId"`
	Type               string    `json:"tipo"`
	RevokedAt          time.Time `json:"revokedAt"`
	AffectedTreatments []string  `json:"affectedTreatments"`
	RequiredActions    []string  `json:"requiredActions"`
}

// The transition functions below check the current state, then their
// inputs, and only mutate c when the transition is legal.

func sign(c *patient.Consent, signature string, now time.Time) error {
	if strings.TrimSpace(signature) == "" {
		return apperr.Validation("signatureData", "signature is required")
	}
	if from := c.CoreState(); from != patient.ConsentPendingSignature {
		return apperr.State(entity, string(from), string(patient.ConsentSigned))
	}
	c.Signed = true
	c.SignedAt = &now
	c.SignatureData = signature
	if c.ExpiresAt == nil {
		if t, ok := Lookup(c.Type); ok && t.ValidityMonths > 0 {
			exp := now.AddDate(0, t.ValidityMonths, 0)
			c.ExpiresAt = &exp
		}
	}
	return nil
}

func revoke(c *patient.Consent, now time.Time) (*RevocationImpact, error) {
	if from := c.CoreState(); from != patient.ConsentSigned {
		return nil, apperr.State(entity, string(from), string(patient.ConsentRevoked))
	}
	c.Revoked = true
	c.RevokedAt = &now
	return &RevocationImpact{
		ConsentID:          c.ID.String(),
		Type:               c.Type,
		RevokedAt:          now,
		AffectedTreatments: []string{},
		RequiredActions:    append([]string(nil), revocationActions...),
	}, nil
}

func scheduleRenewal(c *patient.Consent, date, now time.Time) error {
	if from := c.CoreState(); from != patient.ConsentSigned {
		return apperr.State(entity, string(from), string(patient.ConsentRenewalRequired))
	}
	if date.IsZero() {
		return apperr.Validation("renovacionProgramada", "date is required")
	}
	if date.Before(now) {
		return apperr.Validation("renovacionProgramada", "date %s is in the past", date.Format(time.RFC3339))
	}
	c.RenewalRequired = true
	c.RenewalScheduledFor = &date
	return nil
}
