package patient

import (
	"time"

	"github.com/google/uuid"
)

// ConsentState is the lifecycle state of a consent record.
type ConsentState string

const (
	ConsentPendingSignature ConsentState = "pending_signature"
	ConsentSigned           ConsentState = "signed"
	ConsentRenewalRequired  ConsentState = "renewal_required"
	ConsentExpired          ConsentState = "expired"
	ConsentRevoked          ConsentState = "revoked"
)

// Consent is a signed or revocable authorization tied to a named treatment or
// data-usage category. Type holds the catalog name the consent was created
// for.
type Consent struct {
	ID                  uuid.UUID  `json:"id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	Type                string     `json:"tipo"`
	Signed              bool       `json:"firmado"`
	Date                time.Time  `json:"fecha"`
	SignedAt            *time.Time `json:"fechaFirma,omitempty"`
	ExpiresAt           *time.Time `json:"vencimiento,omitempty"`
	Revoked             bool       `json:"revocado"`
	RevokedAt           *time.Time `json:"fechaRevocacion,omitempty"`
	RenewalRequired     bool       `json:"renovacionRequerida,omitempty"`
	RenewalScheduledFor *time.Time `json:"renovacionProgramada,omitempty"`
	SignatureData       string     `json:"-"`
	CreatedBy           string     `json:"created_by,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsCurrent reports whether the consent is signed and not revoked.
func (c *Consent) IsCurrent() bool {
	return c.Signed && !c.Revoked
}

// CoreState returns the state used for transition checks. Expiry and renewal
// scheduling do not change it.
func (c *Consent) CoreState() ConsentState {
	switch {
	case c.Revoked:
		return ConsentRevoked
	case c.Signed:
		return ConsentSigned
	default:
		return ConsentPendingSignature
	}
}

// State returns the display state of the consent at now.
func (c *Consent) State(now time.Time) ConsentState {
	core := c.CoreState()
	if core != ConsentSigned {
		return core
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ConsentExpired
	}
	if c.RenewalRequired {
		return ConsentRenewalRequired
	}
	return ConsentSigned
}
