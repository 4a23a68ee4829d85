// Package diag implements the Diagnostic Engine (spec.md §4.9): structured
// diagnostics with spans, severity, and a stable error-code catalog shared
// by the lexer, parser, analyzer, and evaluator.
//
// Field naming is grounded on the Diagnostic/DiagnosticRange shape in
// opentofu's JSON diagnostic entity
// (_examples/other_examples/19cee49d_opentofu-opentofu_..._diagnostic.go.go):
// Severity/Summary/Range there map to Severity/Message/Span here, adapted
// to spec.md §4.9's field list (code, severity, span, message, help, note,
// related).
package diag

import (
	"fmt"
	"sort"
)

// Severity gradations correspond to the downstream formatter's rendering
// (spec.md §4.9); the formatter itself is an external collaborator.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Span mirrors fhirpath.Span without importing the fhirpath package
// (diag has no dependency on the AST/lexer, so it can be used standalone
// by any phase, per the component dependency graph in spec.md §2).
type Span struct {
	Start int
	End   int
}

// Code is a stable error-code identifier, namespaced numerically by phase
// (spec.md §4.9): 0001-0099 lexer, 0100-0199 parser, 0200-0299 analyzer.
// Catalog, in catalog.go, enumerates every code this module emits together
// with a one-sentence description.
type Code string

// RelatedSpan attaches a secondary span and message to a Diagnostic, for
// "see also" references (e.g. the earlier declaration a redefinition
// conflicts with).
type RelatedSpan struct {
	Span     Span
	Message  string
	Severity Severity
}

// Diagnostic is a single structured error/warning/info/hint, per spec.md
// §4.9 and §6's "Diagnostics output (structured)" serialization.
type Diagnostic struct {
	Code     Code
	Severity Severity
	SourceID string
	Span     Span
	Message  string
	Help     string
	Note     string
	Related  []RelatedSpan
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s]: %s (%d:%d)", d.Severity, d.Code, d.Message, d.Span.Start, d.Span.End)
}

// New constructs a Diagnostic with the required fields; Help/Note/Related
// are set via the With* builders below.
func New(code Code, severity Severity, span Span, message string) Diagnostic {
	return Diagnostic{Code: code, Severity: severity, Span: span, Message: message}
}

func (d Diagnostic) WithHelp(help string) Diagnostic   { d.Help = help; return d }
func (d Diagnostic) WithNote(note string) Diagnostic   { d.Note = note; return d }
func (d Diagnostic) WithSource(id string) Diagnostic   { d.SourceID = id; return d }
func (d Diagnostic) WithRelated(r RelatedSpan) Diagnostic {
	d.Related = append(d.Related, r)
	return d
}

// Bag accumulates diagnostics across a phase (lexer+parser, analyzer, or
// evaluator), deduplicating and sorting per spec.md §4.9.
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) { b.items = append(b.items, d) }

func (b *Bag) Addf(code Code, severity Severity, span Span, format string, args ...any) {
	b.Add(New(code, severity, span, fmt.Sprintf(format, args...)))
}

// Diagnostics returns the deduplicated, sorted diagnostic list: sorted by
// primary span start then severity, deduplicated by (code, span, message).
func (b *Bag) Diagnostics() []Diagnostic {
	seen := make(map[string]bool, len(b.items))
	out := make([]Diagnostic, 0, len(b.items))
	for _, d := range b.items {
		key := fmt.Sprintf("%s|%d:%d|%s", d.Code, d.Span.Start, d.Span.End, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Severity < out[j].Severity
	})
	return out
}

// HasErrors reports whether any accumulated diagnostic is SeverityError.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len reports the number of accumulated diagnostics before dedup.
func (b *Bag) Len() int { return len(b.items) }

// SourceManager registers source texts by id so a downstream formatter can
// render carets (spec.md §4.9); the engine itself never renders, it only
// tracks texts by id.
type SourceManager struct {
	sources map[string]string
}

func NewSourceManager() *SourceManager {
	return &SourceManager{sources: make(map[string]string)}
}

func (sm *SourceManager) Register(id, text string) { sm.sources[id] = text }
func (sm *SourceManager) Get(id string) (string, bool) {
	t, ok := sm.sources[id]
	return t, ok
}
