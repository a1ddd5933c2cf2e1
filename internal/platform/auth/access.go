package auth

import (
	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/platform/hipaa"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDentist   Role = "dentista"
	RoleAssistant Role = "assistant"
	RolePatient   Role = "paciente"
)

// DataKind classifies the medical data an operation touches.
type DataKind string

const (
	DataAll            DataKind = "all"
	DataMedicalHistory DataKind = "medical_history"
	DataTreatmentPlans DataKind = "treatment_plans"
	DataNotes          DataKind = "notes"
	DataContactInfo    DataKind = "contact_info"
	DataAppointments   DataKind = "appointments"
	DataConsent        DataKind = "consent"
	DataDocument       DataKind = "document"
	DataCommunication  DataKind = "communication"
)

// permissions is the fixed role to data-kind table. Roles missing from the
// table are granted nothing. Two rows go beyond the base clinical table:
// dentista holds consent so clinicians can open, revoke and renew consents,
// and paciente holds the kinds needed to read and sign their own record.
var permissions = map[Role][]DataKind{
	RoleAdmin:     {DataAll},
	RoleDentist:   {DataMedicalHistory, DataTreatmentPlans, DataNotes, DataConsent},
	RoleAssistant: {DataContactInfo, DataAppointments},
	RolePatient:   {DataMedicalHistory, DataConsent, DataAppointments, DataContactInfo},
}

// User is the acting identity passed explicitly into every gated call.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role"`
	PatientID uuid.UUID `json:"patientId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Decision is the result of an access check. Reason is set when denied.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAccess decides whether user may touch kind data of the patient.
// A patient is confined to their own record before the role table is
// consulted.
func CheckAccess(user User, patientID uuid.UUID, kind DataKind) Decision {
	if user.Role == RolePatient && (user.PatientID == uuid.Nil || user.PatientID != patientID) {
		return Decision{Reason: hipaa.ReasonPatientOwnDataOnly}
	}
	for _, k := range permissions[user.Role] {
		if k == DataAll || k == kind {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: hipaa.ReasonInsufficientPermissions}
}

// Permits reports whether the role's table grants kind, ignoring patient
// ownership.
func (r Role) Permits(kind DataKind) bool {
	for _, k := range permissions[r] {
		if k == DataAll || k == kind {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	_, ok := permissions[r]
	return ok
}
