package diag

// Catalog enumerates every Code this module emits, one sentence each,
// grounded on the error-code catalog referenced by the diagnostics engine
// in _examples/original_source/crates/octofhir-fhirpath/src/diagnostics/engine.rs
// (a crate::core::error_code::ErrorCode type feeding its ariadne-backed
// reporter). This package has no such reporter; Catalog exists so a caller
// can look up what a code means without grepping call sites, and so CI can
// assert every code a phase emits is listed here.
//
// Ranges: 0001-0099 lexer, 0100-0199 parser, 0200-0299 analyzer. Evaluator
// failures (recursion limit, cancellation, type errors) are returned as Go
// errors rather than diagnostics, so they carry no FP code; see
// fhirpath.ErrRecursionLimit and fhirpath.ErrCancelled.
var Catalog = map[Code]string{
	"FP0001": "malformed token: the lexer could not scan the input at this position",

	"FP0100": "empty expression: the source contained no parseable expression",
	"FP0101": "unexpected token after a complete expression",
	"FP0102": "expected a closing delimiter that was never found",
	"FP0103": "expected an identifier after '.'",
	"FP0104": "expected a type specifier",
	"FP0105": "invalid string escape sequence in a string literal",
	"FP0106": "unexpected token encountered where an expression or operator was expected",
	"FP0107": "unknown reserved variable: only $this, $index, and $total are defined",

	"FP0201": "unknown function name (call arity is not checked)",
	"FP0202": "property is not declared on any candidate input type",
	"FP0203": "type specifier does not resolve to a known type while no model provider is configured",
	"FP0204": "expression nesting exceeds the configured recursion limit",
	"FP0205": "reserved for a choice-type navigation that resolves to more than one candidate type",
}

// Describe returns the catalog's one-sentence description for code, and
// whether the code was found.
func Describe(code Code) (string, bool) {
	s, ok := Catalog[code]
	return s, ok
}
