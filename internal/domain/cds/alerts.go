package cds

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odonto/odonto/internal/domain/patient"
)

type AlertType string

const (
	AlertCriticalAllergy  AlertType = "CRITICAL_ALLERGY"
	AlertMedicalCondition AlertType = "MEDICAL_CONDITION"
	AlertDrugInteraction  AlertType = "DRUG_INTERACTION"
	AlertAgeConsideration AlertType = "AGE_CONSIDERATION"
	AlertHighRisk         AlertType = "HIGH_RISK"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var priorityColors = map[Priority]string{
	PriorityHigh:   "#dc3545",
	PriorityMedium: "#ffc107",
	PriorityLow:    "#17a2b8",
}

// Color returns the display color for the priority.
func (p Priority) Color() string { return priorityColors[p] }

// Alert is a derived warning about a patient. Alerts are recomputed on
// every evaluation and never stored.
type Alert struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Color     string    `json:"color"`
	PatientID uuid.UUID `json:"patientId"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateAlerts evaluates the alert rules for p at the given instant. The
// order is fixed: severe allergies, high-risk conditions, drug interactions,
// age, overall risk. The risk rule scores the snapshot itself rather than
// trusting the stored score.
func GenerateAlerts(p *patient.Patient, at time.Time) []Alert {
	if p == nil {
		return nil
	}
	alerts := make([]Alert, 0, 4)
	emit := func(t AlertType, pr Priority, msg string) {
		alerts = append(alerts, Alert{
			Type:      t,
			Message:   msg,
			Priority:  pr,
			Color:     pr.Color(),
			PatientID: p.ID,
			Timestamp: at,
		})
	}

	for _, a := range p.Allergies {
		if !a.IsSevere() {
			continue
		}
		msg := fmt.Sprintf("Alergia severa a %s", a.Name)
		if a.Reaction != nil && *a.Reaction != "" {
			msg += fmt.Sprintf(" (reacción: %s)", *a.Reaction)
		}
		emit(AlertCriticalAllergy, PriorityHigh, msg)
	}

	for _, c := range p.Conditions {
		if !IsHighRiskCondition(c.Name) {
			continue
		}
		if c.Controlled {
			emit(AlertMedicalCondition, PriorityMedium, fmt.Sprintf("Condición médica controlada: %s", c.Name))
		} else {
			emit(AlertMedicalCondition, PriorityHigh, fmt.Sprintf("Condición médica no controlada: %s", c.Name))
		}
	}

	for _, f := range CheckInteractions(p.Medications) {
		emit(AlertDrugInteraction, PriorityMedium,
			fmt.Sprintf("Interacción entre %s y %s: %s", f.Drugs[0], f.Drugs[1], f.Recommendation))
	}

	if age := p.AgeAt(at); age >= elderlyAge {
		emit(AlertAgeConsideration, PriorityLow,
			fmt.Sprintf("Paciente de %d años: considerar ajustes en anestesia y medicación", age))
	}

	if score := ComputeRiskScoreAt(p, at); score >= HighRiskThreshold {
		emit(AlertHighRisk, PriorityHigh,
			fmt.Sprintf("Paciente de alto riesgo (puntuación %d/10): requiere evaluación previa al tratamiento", score))
	}

	return alerts
}
