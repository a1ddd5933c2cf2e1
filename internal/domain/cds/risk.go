package cds

import (
	"math"
	"strings"
	"time"

	"github.com/odonto/odonto/internal/domain/patient"
)

const (
	MinRiskScore      = 1
	MaxRiskScore      = 10
	HighRiskThreshold = 8

	elderlyAge         = 65
	veryElderlyAge     = 75
	heavySmokerPerDay  = 20
	polypharmacyCount  = 5
	severeAllergyPoint = 0.5
)

// highRiskVocabulary is matched as a case-insensitive substring of the
// condition name.
var highRiskVocabulary = []string{
	"diabetes",
	"hipertension",
	"enfermedad_cardiaca",
	"anticoagulante",
	"osteoporosis",
	"cancer",
}

// IsHighRiskCondition reports whether a condition name falls in the
// high-risk vocabulary.
func IsHighRiskCondition(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range highRiskVocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// ComputeRiskScore scores p as of now.
func ComputeRiskScore(p *patient.Patient) int {
	return ComputeRiskScoreAt(p, time.Now())
}

// ComputeRiskScoreAt returns the patient's odontological risk in [1,10] with
// age taken at now. Absent fields contribute nothing; the function never
// fails.
func ComputeRiskScoreAt(p *patient.Patient, now time.Time) int {
	if p == nil {
		return MinRiskScore
	}
	score := 1.0

	age := p.AgeAt(now)
	if age > elderlyAge {
		score++
	}
	if age > veryElderlyAge {
		score++
	}

	for _, c := range p.Conditions {
		if !IsHighRiskCondition(c.Name) {
			continue
		}
		if c.Controlled {
			score++
		} else {
			score += 2
		}
	}

	for _, a := range p.Allergies {
		if a.IsSevere() {
			score += severeAllergyPoint
		}
	}

	if h := p.Habits; h != nil {
		if h.Smoker {
			if h.CigarettesPerDay > heavySmokerPerDay {
				score += 2
			} else {
				score++
			}
		}
		if h.BrushingFrequency == patient.BrushingNever || h.BrushingFrequency == patient.BrushingOnce {
			score++
		}
	}

	if len(p.Medications) > polypharmacyCount {
		score++
	}

	return clampScore(score)
}

func clampScore(acc float64) int {
	s := int(math.Round(acc))
	if s > MaxRiskScore {
		return MaxRiskScore
	}
	if s < MinRiskScore {
		return MinRiskScore
	}
	return s
}

// RiskLevel buckets a score for display.
func RiskLevel(score int) string {
	switch {
	case score >= HighRiskThreshold:
		return "high"
	case score >= 4:
		return "moderate"
	default:
		return "low"
	}
}

// IsStale reports whether the stored score no longer matches the clinical
// fields.
func IsStale(p *patient.Patient, now time.Time) bool {
	return p.RiskScore != ComputeRiskScoreAt(p, now)
}
