package fhirpath

import (
	"context"
	"fmt"
	"time"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath/diag"
)

// This file is the public API (spec.md §6): Parse, Analyze, and Evaluate,
// plus the Options struct that threads configuration through all three,
// grounded on the teacher's top-level Evaluate/EvaluateString entry points
// (_examples/damedic-fhir-toolbox-go/fhirpath/fhirpath.go) adapted to this
// engine's hand-written parser and explicit ModelProvider seam.

// Options configures Parse, Analyze, and Evaluate (spec.md §6). The zero
// value is usable: it parses/evaluates with default limits, System-only
// types, and no Model Provider.
type Options struct {
	// Namespace is the default namespace searched first for a bare type
	// name (e.g. "FHIR"); defaults to "System".
	Namespace string
	// ModelProvider supplies FHIR schema information to the analyzer's
	// property checks and to conformsTo(), which fails without one.
	// is/as/ofType resolve types without consulting it, and member access
	// does not use it: `value` matches only a property literally named
	// "value", never its `valueX` choice-type variants.
	ModelProvider ModelProvider
	// Variables pre-binds %name environment variables for the evaluation,
	// in addition to the standing %ucum/%loinc/%sct system constants.
	Variables map[string]Collection
	// Functions overlays additional or replacement functions onto the
	// default registry.
	Functions Functions
	// Tracer receives trace() calls; defaults to StdoutTracer.
	Tracer Tracer
	// MaxRecursionDepth bounds evaluator/analyzer recursion (cyclic or
	// pathological expressions); 0 selects DefaultMaxRecursionDepth.
	MaxRecursionDepth int
	// MaxCollectionSize is accepted but not consulted during evaluation:
	// repeat() and descendants() stop with ErrCollectionLimit at a fixed
	// ceiling of 200,000 items whatever this field holds, and other
	// collection growth is not bounded.
	MaxCollectionSize int
	// Now, when non-zero, pins the instant now()/today()/timeOfDay()
	// observe, for reproducible tests; the zero value uses wall-clock time.
	Now time.Time
	// SourceID tags diagnostics emitted for this source (spec.md §4.9),
	// e.g. the originating file or request id.
	SourceID string
	// NoColor is propagated to an external diagnostic renderer; the engine
	// itself never renders diagnostics to a terminal (spec.md §1).
	NoColor bool
}

// DefaultMaxRecursionDepth and DefaultMaxCollectionSize are the limits
// Options applies when left unset.
const (
	DefaultMaxRecursionDepth = 1000
	DefaultMaxCollectionSize = 1_000_000
)

// ParseResult is Parse's return value: the AST (nil if fatally malformed)
// plus every diagnostic the lexer/parser recorded.
type ParseResult struct {
	AST         Node
	Diagnostics []diag.Diagnostic
}

// Parse lexes and parses a FHIRPath expression, never failing outright:
// malformed input produces diagnostics and a best-effort partial AST,
// per spec.md §4.1's resynchronizing parser.
func Parse(source string) ParseResult {
	node, diags := parseSource(source)
	return ParseResult{AST: node, Diagnostics: diags}
}

// AnalyzeResult is Analyze's return value: the statically inferred result
// type(s) of the expression (when determinable) plus accumulated
// diagnostics.
type AnalyzeResult struct {
	// ResultTypes lists every TypeSpecifier the expression's root could
	// evaluate to; System.Any when analysis could not narrow it (no
	// ModelProvider, or a construct the analyzer does not specialize).
	ResultTypes []TypeSpecifier
	Diagnostics []diag.Diagnostic
}

// Analyze performs static checks over a parsed expression (spec.md §4.8):
// unknown function names, and (when opts.ModelProvider is given) property
// names that no candidate input type declares. It does not check call
// arity or argument types. Analyze never panics and never mutates
// the AST; it is safe to call before or instead of Evaluate.
func Analyze(ast Node, inputType TypeSpecifier, opts Options) AnalyzeResult {
	a := &analyzer{
		ctx:     buildContext(context.Background(), opts),
		opts:    opts,
		bag:     &diag.Bag{},
		depth:   0,
		maxDepth: maxRecursionDepth(opts),
	}
	types := a.analyze(ast, []TypeSpecifier{inputType}, true)
	return AnalyzeResult{ResultTypes: types, Diagnostics: a.bag.Diagnostics()}
}

// EvalResult is Evaluate's return value: the resulting Collection plus
// diagnostics. Diagnostics is filled only when the source yields no AST
// (the parser's diagnostics, returned alongside a non-nil error);
// evaluation failures are returned as the error, never as diagnostics.
type EvalResult struct {
	Value       Collection
	Diagnostics []diag.Diagnostic
}

// Evaluate parses (if needed) and evaluates a FHIRPath expression against
// root, per spec.md §4.8. Call Parse once and pass its AST to EvaluateAST
// to skip reparsing when the same expression runs against many inputs.
func Evaluate(ctx context.Context, source string, root Element, opts Options) (EvalResult, error) {
	parsed := Parse(source)
	if parsed.AST == nil {
		return EvalResult{Diagnostics: parsed.Diagnostics}, fmt.Errorf("fhirpath: expression did not parse: %d diagnostic(s)", len(parsed.Diagnostics))
	}
	return EvaluateAST(ctx, parsed.AST, root, opts)
}

// EvaluateAST evaluates an already-parsed AST against root.
func EvaluateAST(ctx context.Context, ast Node, root Element, opts Options) (EvalResult, error) {
	ctx = buildContext(ctx, opts)
	ctx, _ = withNewEnvStackFrame(ctx)
	for name, value := range opts.Variables {
		ctx = WithEnv(ctx, name, value)
	}

	value, _, err := evalNode(ctx, root, Collection{root}, true, ast, true)
	if err != nil {
		return EvalResult{}, fmt.Errorf("fhirpath: evaluation failed: %w", err)
	}
	return EvalResult{Value: value}, nil
}

// buildContext installs every Options-derived context.Context value Evaluate
// and Analyze share, so both phases see identical configuration.
func buildContext(ctx context.Context, opts Options) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "System"
	}
	ctx = WithNamespace(ctx, namespace)
	ctx = withMaxEvalDepth(ctx, maxRecursionDepth(opts))
	if opts.ModelProvider != nil {
		ctx = WithModelProvider(ctx, opts.ModelProvider)
	}
	if opts.Functions != nil {
		ctx = WithFunctions(ctx, opts.Functions)
	}
	if opts.Tracer != nil {
		ctx = WithTracer(ctx, opts.Tracer)
	}
	if !opts.Now.IsZero() {
		ctx = context.WithValue(ctx, evaluationInstantKey{}, opts.Now)
	} else {
		ctx = withEvaluationInstant(ctx)
	}
	return ctx
}

func maxRecursionDepth(opts Options) int {
	if opts.MaxRecursionDepth > 0 {
		return opts.MaxRecursionDepth
	}
	return DefaultMaxRecursionDepth
}

func maxCollectionSize(opts Options) int {
	if opts.MaxCollectionSize > 0 {
		return opts.MaxCollectionSize
	}
	return DefaultMaxCollectionSize
}
