// Package consent manages the consent lifecycle of a patient and resolves
// which consents a procedure requires.
package consent

// ConsentType is a catalog entry. Consents are matched to it by Name.
type ConsentType struct {
	Name           string `json:"name"`
	Title          string `json:"title"`
	Required       bool   `json:"required"`
	ValidityMonths int    `json:"validityMonths"`
}

const (
	TypeGeneralTreatment    = "general_treatment"
	TypeDataUsage           = "data_usage"
	TypeOralSurgery         = "oral_surgery"
	TypeAnesthesia          = "anesthesia"
	TypeOrthodontics        = "orthodontics"
	TypeImplants            = "implants"
	TypeEndodontics         = "endodontics"
	TypeClinicalPhotography = "clinical_photography"
)

// Procedures with their own consent sets.
const (
	ProcedureOralSurgery  = "cirugia_oral"
	ProcedureOrthodontics = "ortodoncia"
	ProcedureImplants     = "implantes"
	ProcedureEndodontics  = "endodoncia"
)

// catalog is ordered; resolution results follow this order.
var catalog = []ConsentType{
	{Name: TypeGeneralTreatment, Title: "Consentimiento informado para tratamiento odontológico", Required: true, ValidityMonths: 12},
	{Name: TypeDataUsage, Title: "Autorización de uso de datos personales", Required: true, ValidityMonths: 24},
	{Name: TypeOralSurgery, Title: "Consentimiento para cirugía oral", ValidityMonths: 6},
	{Name: TypeAnesthesia, Title: "Consentimiento para anestesia local", ValidityMonths: 6},
	{Name: TypeOrthodontics, Title: "Consentimiento para tratamiento de ortodoncia", ValidityMonths: 36},
	{Name: TypeImplants, Title: "Consentimiento para implantes dentales", ValidityMonths: 12},
	{Name: TypeEndodontics, Title: "Consentimiento para endodoncia", ValidityMonths: 6},
	{Name: TypeClinicalPhotography, Title: "Autorización de fotografía clínica", ValidityMonths: 24},
}

var procedureConsents = map[string][]string{
	ProcedureOralSurgery:  {TypeGeneralTreatment, TypeOralSurgery, TypeAnesthesia},
	ProcedureOrthodontics: {TypeGeneralTreatment, TypeOrthodontics},
	ProcedureImplants:     {TypeGeneralTreatment, TypeImplants, TypeAnesthesia},
	ProcedureEndodontics:  {TypeGeneralTreatment, TypeEndodontics, TypeAnesthesia},
}

// Catalog returns a copy of all consent types.
func Catalog() []ConsentType {
	return append([]ConsentType(nil), catalog...)
}

// Lookup finds a consent type by name.
func Lookup(name string) (ConsentType, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return ConsentType{}, false
}

// ResolveRequired returns the consent types a procedure needs. Unknown or
// empty procedures need every type flagged required.
func ResolveRequired(procedure string) []ConsentType {
	names, ok := procedureConsents[procedure]
	if !ok {
		var out []ConsentType
		for _, t := range catalog {
			if t.Required {
				out = append(out, t)
			}
		}
		return out
	}
	out := make([]ConsentType, 0, len(names))
	for _, n := range names {
		t, _ := Lookup(n)
		out = append(out, t)
	}
	return out
}
