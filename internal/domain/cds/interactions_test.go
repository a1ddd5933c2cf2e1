package cds

import (
	"reflect"
	"testing"
)

func TestCheckInteractions_SymmetricPairReportedOnce(t *testing.T) {
	findings := CheckInteractions(meds("Warfarin", "Aspirina"))
	if len(findings) != 1 {
		t.Fatalf("expected exactly one finding, got %d: %+v", len(findings), findings)
	}
	if findings[0].Drugs != [2]string{"Warfarin", "Aspirina"} {
		t.Errorf("expected Warfarin/Aspirina, got %v", findings[0].Drugs)
	}
	if findings[0].Recommendation == "" {
		t.Error("expected a recommendation")
	}

	reversed := CheckInteractions(meds("Aspirina", "Warfarin"))
	if len(reversed) != 1 || reversed[0].Drugs != [2]string{"Aspirina", "Warfarin"} {
		t.Errorf("expected single finding in list order, got %+v", reversed)
	}
}

func TestCheckInteractions(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  [][2]string
	}{
		{"empty", nil, nil},
		{"single drug", []string{"warfarina"}, nil},
		{"no interaction", []string{"amoxicilina", "paracetamol"}, nil},
		{"case-insensitive", []string{"WARFARINA", "ibuprofeno"}, [][2]string{{"WARFARINA", "ibuprofeno"}}},
		{"metformin and alcohol", []string{"Metformina", "Alcohol"}, [][2]string{{"Metformina", "Alcohol"}}},
		{"no substring matching", []string{"warfarin sódica", "aspirina"}, nil},
		{"aliases of one drug do not interact", []string{"aspirin", "aspirina"}, nil},
		{
			"multiple pairs in list order",
			[]string{"aspirina", "amoxicilina", "warfarina", "clopidogrel"},
			[][2]string{{"aspirina", "warfarina"}, {"aspirina", "clopidogrel"}},
		},
		{
			"repeated entry pairs with each partner",
			[]string{"warfarina", "aspirina", "warfarina"},
			[][2]string{{"warfarina", "aspirina"}, {"aspirina", "warfarina"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := CheckInteractions(meds(tt.names...))
			var got [][2]string
			for _, f := range findings {
				got = append(got, f.Drugs)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInteractsWith(t *testing.T) {
	tests := map[string][]Drug{
		"Aspirina":    {DrugClopidogrel, DrugWarfarin},
		"warfarin":    {DrugAspirin, DrugIbuprofen},
		"metformina":  {DrugAlcohol},
		"clopidogrel": {DrugAspirin},
	}
	for name, want := range tests {
		if got := InteractsWith(name); !reflect.DeepEqual(got, want) {
			t.Errorf("InteractsWith(%q) = %v, want %v", name, got, want)
		}
	}
	if got := InteractsWith("paracetamol"); got != nil {
		t.Errorf("expected nil for unknown drug, got %v", got)
	}
}
