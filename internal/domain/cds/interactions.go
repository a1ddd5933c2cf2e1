package cds

import (
	"sort"
	"strings"

	"github.com/odonto/odonto/internal/domain/patient"
)

// Drug is an entry of the interaction knowledge base.
type Drug string

const (
	DrugWarfarin    Drug = "warfarin"
	DrugAspirin     Drug = "aspirin"
	DrugIbuprofen   Drug = "ibuprofen"
	DrugClopidogrel Drug = "clopidogrel"
	DrugMetformin   Drug = "metformin"
	DrugAlcohol     Drug = "alcohol"
)

// drugAliases maps lower-cased medication names to table entries. Names not
// listed never interact.
var drugAliases = map[string]Drug{
	"warfarin":    DrugWarfarin,
	"warfarina":   DrugWarfarin,
	"aspirin":     DrugAspirin,
	"aspirina":    DrugAspirin,
	"ibuprofen":   DrugIbuprofen,
	"ibuprofeno":  DrugIbuprofen,
	"clopidogrel": DrugClopidogrel,
	"metformin":   DrugMetformin,
	"metformina":  DrugMetformin,
	"alcohol":     DrugAlcohol,
}

type drugPair [2]Drug

func pairOf(a, b Drug) drugPair {
	if a > b {
		a, b = b, a
	}
	return drugPair{a, b}
}

type interaction struct {
	Severity       string
	Recommendation string
}

var interactionTable = map[drugPair]interaction{
	pairOf(DrugWarfarin, DrugAspirin): {
		Severity:       "high",
		Recommendation: "Riesgo aumentado de sangrado. Coordinar con el médico tratante antes de procedimientos invasivos.",
	},
	pairOf(DrugWarfarin, DrugIbuprofen): {
		Severity:       "high",
		Recommendation: "Evitar AINEs; usar paracetamol para el control del dolor.",
	},
	pairOf(DrugAspirin, DrugClopidogrel): {
		Severity:       "moderate",
		Recommendation: "Doble antiagregación: planificar hemostasia local reforzada.",
	},
	pairOf(DrugMetformin, DrugAlcohol): {
		Severity:       "moderate",
		Recommendation: "Riesgo de acidosis láctica. Indicar abstención de alcohol.",
	},
}

// InteractionFinding is one interacting pair found in a medication list.
// Drugs keeps the names as written, in list order.
type InteractionFinding struct {
	Drugs          [2]string `json:"drugs"`
	Severity       string    `json:"severity"`
	Recommendation string    `json:"recommendation"`
}

func lookupDrug(name string) (Drug, bool) {
	d, ok := drugAliases[strings.ToLower(name)]
	return d, ok
}

// CheckInteractions returns one finding per unordered pair of distinct
// entries that interact.
func CheckInteractions(meds []patient.Medication) []InteractionFinding {
	var findings []InteractionFinding
	for i := 0; i < len(meds); i++ {
		a, ok := lookupDrug(meds[i].Name)
		if !ok {
			continue
		}
		for j := i + 1; j < len(meds); j++ {
			b, ok := lookupDrug(meds[j].Name)
			if !ok || a == b {
				continue
			}
			ix, ok := interactionTable[pairOf(a, b)]
			if !ok {
				continue
			}
			findings = append(findings, InteractionFinding{
				Drugs:          [2]string{meds[i].Name, meds[j].Name},
				Severity:       ix.Severity,
				Recommendation: ix.Recommendation,
			})
		}
	}
	return findings
}

// InteractsWith lists the table entries that interact with the named drug,
// sorted. Unknown names yield nil.
func InteractsWith(name string) []Drug {
	d, ok := lookupDrug(name)
	if !ok {
		return nil
	}
	var out []Drug
	for pair := range interactionTable {
		switch d {
		case pair[0]:
			out = append(out, pair[1])
		case pair[1]:
			out = append(out, pair[0])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
