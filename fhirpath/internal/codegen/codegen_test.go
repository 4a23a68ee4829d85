package codegen

import "testing"

func TestPropertyFieldName(t *testing.T) {
	cases := map[string]string{
		"valueQuantity": "ValueQuantity",
		"birthDate":     "BirthDate",
		"id":            "Id",
	}
	for in, want := range cases {
		if got := PropertyFieldName(in); got != want {
			t.Errorf("PropertyFieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChoiceFieldName(t *testing.T) {
	if got := ChoiceFieldName("value", "Quantity"); got != "ValueQuantity" {
		t.Errorf("ChoiceFieldName(value, Quantity) = %q", got)
	}
	if got := ChoiceFieldName("value", "CodeableConcept"); got != "ValueCodeableConcept" {
		t.Errorf("ChoiceFieldName(value, CodeableConcept) = %q", got)
	}
}

func TestPathSegmentName(t *testing.T) {
	cases := map[string]string{
		"Patient.name":         "name",
		"Observation.value[x]": "value[x]",
		"name:official":        "name",
		"value\\Quantity":      "value",
	}
	for in, want := range cases {
		if got := PathSegmentName(in); got != want {
			t.Errorf("PathSegmentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName("Quantity|SimpleQuantity"); got != "Quantity" {
		t.Errorf("TypeName with profile suffix = %q", got)
	}
	if got := TypeName("CodeableConcept"); got != "CodeableConcept" {
		t.Errorf("TypeName(CodeableConcept) = %q", got)
	}
}
