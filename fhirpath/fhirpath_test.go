package fhirpath_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath"
)

func evalString(t *testing.T, expr string, root fhirpath.Element, opts fhirpath.Options) fhirpath.Collection {
	t.Helper()
	result, err := fhirpath.Evaluate(context.Background(), expr, root, opts)
	if err != nil {
		t.Fatalf("evaluating %q: %v", expr, err)
	}
	return result.Value
}

func TestEvaluateArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want fhirpath.Element
	}{
		{"1 + 2", fhirpath.Integer(3)},
		{"7 div 2", fhirpath.Integer(3)},
		{"7 mod 2", fhirpath.Integer(1)},
		{"2 * 3 + 1", fhirpath.Integer(7)},
		{"'a' & 'b'", fhirpath.String("ab")},
		{"true and false", fhirpath.Boolean(false)},
		{"true or false", fhirpath.Boolean(true)},
		{"1 < 2", fhirpath.Boolean(true)},
		{"(1 + 1) = 2", fhirpath.Boolean(true)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got := evalString(t, tc.expr, fhirpath.Boolean(true), fhirpath.Options{})
			if len(got) != 1 {
				t.Fatalf("got %d results, want 1: %v", len(got), got)
			}
			if got[0] != tc.want {
				t.Errorf("got %#v, want %#v", got[0], tc.want)
			}
		})
	}
}

func TestEvaluateEmptyPropagation(t *testing.T) {
	got := evalString(t, "{} + 1", fhirpath.Boolean(true), fhirpath.Options{})
	if len(got) != 0 {
		t.Errorf("expected empty collection, got %v", got)
	}
}

func TestEvaluateStringFunctions(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"'Hello'.upper()", "HELLO"},
		{"'Hello'.lower()", "hello"},
		{"'  padded  '.trim()", "padded"},
		{"'Hello World'.substring(6)", "World"},
		{"'Hello World'.replace('World', 'There')", "Hello There"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got := evalString(t, tc.expr, fhirpath.String(""), fhirpath.Options{})
			if len(got) != 1 {
				t.Fatalf("got %d results, want 1: %v", len(got), got)
			}
			s, ok := got[0].(fhirpath.String)
			if !ok {
				t.Fatalf("got %T, want fhirpath.String", got[0])
			}
			if string(s) != tc.want {
				t.Errorf("got %q, want %q", s, tc.want)
			}
		})
	}
}

func TestEvaluateResourceNavigation(t *testing.T) {
	var data map[string]any
	src := `{
		"resourceType": "Patient",
		"active": true,
		"name": [
			{"use": "official", "family": "Chalmers", "given": ["Peter", "James"]},
			{"use": "usual", "given": ["Jim"]}
		]
	}`
	if err := json.Unmarshal([]byte(src), &data); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	patient := fhirpath.NewResourceElement(data)

	cases := []struct {
		expr    string
		wantLen int
	}{
		{"name", 2},
		{"name.given", 3},
		{"name.where(use = 'official').family", 1},
		{"name.where(use = 'nonexistent').family", 0},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got := evalString(t, tc.expr, patient, fhirpath.Options{Namespace: "FHIR"})
			if len(got) != tc.wantLen {
				t.Errorf("got %d results, want %d: %v", len(got), tc.wantLen, got)
			}
		})
	}
}

func TestEvaluateCollectionFunctions(t *testing.T) {
	var data map[string]any
	src := `{"resourceType": "Patient", "name": [{"given": ["A", "B"]}, {"given": ["C"]}]}`
	if err := json.Unmarshal([]byte(src), &data); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	patient := fhirpath.NewResourceElement(data)

	if got := evalString(t, "name.given.count()", patient, fhirpath.Options{}); len(got) != 1 || got[0] != fhirpath.Integer(3) {
		t.Errorf("count() = %v, want [3]", got)
	}
	if got := evalString(t, "name.exists()", patient, fhirpath.Options{}); len(got) != 1 || got[0] != fhirpath.Boolean(true) {
		t.Errorf("exists() = %v, want [true]", got)
	}
	if got := evalString(t, "name.empty()", patient, fhirpath.Options{}); len(got) != 1 || got[0] != fhirpath.Boolean(false) {
		t.Errorf("empty() = %v, want [false]", got)
	}
}

func TestEvaluateUnionAndAny(t *testing.T) {
	if got := evalString(t, "(1 | 2).union(2 | 3)", fhirpath.Boolean(true), fhirpath.Options{}); len(got) != 3 {
		t.Errorf("union() = %v, want 3 elements", got)
	}
	if got := evalString(t, "(1 | 2 | 3).any($this > 2)", fhirpath.Boolean(true), fhirpath.Options{}); len(got) != 1 || got[0] != fhirpath.Boolean(true) {
		t.Errorf("any() = %v, want [true]", got)
	}
	if got := evalString(t, "(1 | 2).any($this > 5)", fhirpath.Boolean(true), fhirpath.Options{}); len(got) != 1 || got[0] != fhirpath.Boolean(false) {
		t.Errorf("any() = %v, want [false]", got)
	}
}

func TestEvaluateRecursionLimit(t *testing.T) {
	expr := strings.Repeat("(", 50) + "1" + strings.Repeat(")", 50)
	parsed := fhirpath.Parse(expr)
	if parsed.AST == nil {
		t.Fatalf("expected a parsed AST, got diagnostics %v", parsed.Diagnostics)
	}
	_, err := fhirpath.EvaluateAST(context.Background(), parsed.AST, fhirpath.Boolean(true), fhirpath.Options{MaxRecursionDepth: 10})
	if !errors.Is(err, fhirpath.ErrRecursionLimit) {
		t.Errorf("got err %v, want ErrRecursionLimit", err)
	}
}

func TestEvaluateVariables(t *testing.T) {
	got := evalString(t, "%greeting & ' world'", fhirpath.String(""), fhirpath.Options{
		Variables: map[string]fhirpath.Collection{"greeting": {fhirpath.String("hello")}},
	})
	if len(got) != 1 || got[0] != fhirpath.String("hello world") {
		t.Errorf("got %v, want [hello world]", got)
	}
}

func TestEvaluateSystemConstants(t *testing.T) {
	got := evalString(t, "%ucum", fhirpath.String(""), fhirpath.Options{})
	if len(got) != 1 || got[0] != fhirpath.String("http://unitsofmeasure.org") {
		t.Errorf("got %v", got)
	}
}

func TestParseInvalidExpressionProducesDiagnostics(t *testing.T) {
	result := fhirpath.Parse("1 + ")
	if len(result.Diagnostics) == 0 {
		t.Errorf("expected diagnostics for malformed expression")
	}
}

func TestAnalyzeUnknownFunction(t *testing.T) {
	parsed := fhirpath.Parse("thisFunctionDoesNotExist()")
	if parsed.AST == nil {
		t.Fatalf("expected a parsed AST, got diagnostics %v", parsed.Diagnostics)
	}
	result := fhirpath.Analyze(parsed.AST, fhirpath.TypeSpecifier{Namespace: "System", Name: "Any"}, fhirpath.Options{})
	if len(result.Diagnostics) == 0 {
		t.Errorf("expected a diagnostic for an unknown function")
	}
}
