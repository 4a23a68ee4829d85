package diag_test

import (
	"testing"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath/diag"
)

func TestBagDedup(t *testing.T) {
	var bag diag.Bag
	d := diag.New("FP0001", diag.SeverityError, diag.Span{Start: 0, End: 1}, "boom")
	bag.Add(d)
	bag.Add(d)
	if bag.Len() != 2 {
		t.Fatalf("Len() before dedup = %d, want 2", bag.Len())
	}
	got := bag.Diagnostics()
	if len(got) != 1 {
		t.Errorf("Diagnostics() after dedup = %d, want 1: %v", len(got), got)
	}
}

func TestBagSortsBySpanThenSeverity(t *testing.T) {
	var bag diag.Bag
	bag.Add(diag.New("FP0002", diag.SeverityWarning, diag.Span{Start: 10, End: 12}, "later"))
	bag.Add(diag.New("FP0001", diag.SeverityError, diag.Span{Start: 0, End: 1}, "first"))
	bag.Add(diag.New("FP0003", diag.SeverityError, diag.Span{Start: 10, End: 12}, "same span, error"))

	got := bag.Diagnostics()
	if len(got) != 3 {
		t.Fatalf("got %d diagnostics, want 3", len(got))
	}
	if got[0].Message != "first" {
		t.Errorf("got[0] = %q, want \"first\"", got[0].Message)
	}
	if got[1].Span.Start != 10 || got[1].Severity != diag.SeverityError {
		t.Errorf("got[1] = %+v, want the error at span 10 sorted before the warning at the same span", got[1])
	}
	if got[2].Message != "later" {
		t.Errorf("got[2] = %q, want \"later\"", got[2].Message)
	}
}

func TestBagHasErrors(t *testing.T) {
	var bag diag.Bag
	if bag.HasErrors() {
		t.Errorf("empty bag should not have errors")
	}
	bag.Add(diag.New("FP0001", diag.SeverityWarning, diag.Span{}, "w"))
	if bag.HasErrors() {
		t.Errorf("a warning-only bag should not report HasErrors")
	}
	bag.Add(diag.New("FP0002", diag.SeverityError, diag.Span{}, "e"))
	if !bag.HasErrors() {
		t.Errorf("expected HasErrors() once an error diagnostic is added")
	}
}

func TestDiagnosticBuilders(t *testing.T) {
	d := diag.New("FP0001", diag.SeverityError, diag.Span{Start: 1, End: 2}, "msg").
		WithHelp("try this instead").
		WithNote("some context").
		WithSource("expr-1").
		WithRelated(diag.RelatedSpan{Span: diag.Span{Start: 5, End: 6}, Message: "see also", Severity: diag.SeverityInfo})

	if d.Help != "try this instead" || d.Note != "some context" || d.SourceID != "expr-1" {
		t.Errorf("builder chain did not set all fields: %+v", d)
	}
	if len(d.Related) != 1 || d.Related[0].Message != "see also" {
		t.Errorf("WithRelated did not append: %+v", d.Related)
	}
}

func TestSourceManager(t *testing.T) {
	sm := diag.NewSourceManager()
	sm.Register("expr-1", "Patient.name")
	text, ok := sm.Get("expr-1")
	if !ok || text != "Patient.name" {
		t.Errorf("Get(expr-1) = %q, %v", text, ok)
	}
	if _, ok := sm.Get("missing"); ok {
		t.Errorf("expected Get(missing) to report not-found")
	}
}
