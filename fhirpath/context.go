package fhirpath

import (
	"context"
	"maps"
	"sync"
	"time"
)

// This file gathers the context.Context-carried configuration the
// evaluator and analyzer read: the apd precision context (decimal.go),
// the active namespace and known-types map, environment variable stack
// frames, function-call scope ($this/$index/$total), the function and
// tracer registries, the model provider handle, and the evaluation
// instant cached for now()/today()/timeOfDay(). Grounded on the teacher's
// WithAPDContext/WithNamespace/WithTypes/WithEnv/WithFunctions/WithTracer
// family (fhirpath/types.go, fhirpath/expression.go, fhirpath/functions.go
// in the teacher repo): one context.WithValue seam per configuration axis.

// --- namespace & known types ---

type namespaceKey struct{}

// WithNamespace installs the default namespace searched first when a bare
// (unqualified) type name is resolved, e.g. "FHIR" when evaluating against
// FHIR resources so `Patient` resolves before falling back to `System`.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey{}, namespace)
}

func contextNamespace(ctx context.Context) string {
	ns, ok := ctx.Value(namespaceKey{}).(string)
	if !ok {
		return "System"
	}
	return ns
}

type knownTypesKey struct{}

// WithTypes installs additional TypeInfo entries (typically FHIR resource
// and complex types sourced from a ModelProvider) into the known-type map
// consulted by is/as/ofType and resolveType.
func WithTypes(ctx context.Context, types []TypeInfo) context.Context {
	typeMap := knownTypes(ctx)
	for _, t := range types {
		qual, ok := t.QualifiedName()
		if !ok {
			continue
		}
		typeMap[qual] = t
	}
	return context.WithValue(ctx, knownTypesKey{}, typeMap)
}

func knownTypes(ctx context.Context) map[TypeSpecifier]TypeInfo {
	types, ok := ctx.Value(knownTypesKey{}).(map[TypeSpecifier]TypeInfo)
	if !ok {
		return maps.Clone(systemTypesMapCache())
	}
	return maps.Clone(types)
}

var systemTypesMapOnce = sync.OnceValue(func() map[TypeSpecifier]TypeInfo {
	systemTypes := []TypeInfo{
		Boolean(false).TypeInfo(),
		String("").TypeInfo(),
		Integer(0).TypeInfo(),
		Long(0).TypeInfo(),
		Decimal{}.TypeInfo(),
		Date{}.TypeInfo(),
		Time{}.TypeInfo(),
		DateTime{}.TypeInfo(),
		Quantity{}.TypeInfo(),
	}
	m := map[TypeSpecifier]TypeInfo{}
	for _, t := range systemTypes {
		q, ok := t.QualifiedName()
		if !ok {
			continue
		}
		m[q] = t
	}
	return m
})

func systemTypesMapCache() map[TypeSpecifier]TypeInfo { return systemTypesMapOnce() }

// resolveType looks up a (possibly bare) type name: an explicit namespace
// is searched directly; a bare name searches the context namespace first,
// then System.
func resolveType(ctx context.Context, spec TypeSpecifier) (TypeInfo, bool) {
	if spec.Namespace == "" {
		info, ok := resolveType(ctx, TypeSpecifier{Namespace: contextNamespace(ctx), Name: spec.Name})
		if !ok {
			info, ok = resolveType(ctx, TypeSpecifier{Namespace: "System", Name: spec.Name})
		}
		return info, ok
	}
	t, ok := knownTypes(ctx)[spec]
	return t, ok
}

// subTypeOf walks the BaseTypeName chain from target up to the root,
// reporting whether isOf appears anywhere along it (spec.md §4.5's is/as
// type-hierarchy semantics).
func subTypeOf(ctx context.Context, target, isOf TypeInfo) bool {
	isOfQual, ok := isOf.QualifiedName()
	if !ok {
		return false
	}
	if typQual, ok := target.QualifiedName(); ok && typQual == isOfQual {
		return true
	}
	baseQual, ok := target.BaseTypeName()
	if !ok {
		return false
	}
	if baseQual == isOfQual {
		return true
	}
	baseType, ok := resolveType(ctx, baseQual)
	if !ok {
		return false
	}
	return subTypeOf(ctx, baseType, isOf)
}

// isType implements `is`/`ofType` per spec.md §4.5.
func isType(ctx context.Context, target Element, isOf TypeSpecifier) (Boolean, error) {
	typ, ok := resolveType(ctx, isOf)
	if !ok {
		return Boolean(false), nil
	}
	if subTypeOf(ctx, target.TypeInfo(), typ) {
		return Boolean(true), nil
	}
	// FHIR string-derived primitives (code, uri, id, ...) report "is
	// System.String" even though their BaseTypeName chain terminates at a
	// FHIR primitive, not System.String directly.
	targetQual, ok := target.TypeInfo().QualifiedName()
	if !ok {
		return Boolean(false), nil
	}
	if targetQual.Namespace == "FHIR" {
		if isOfQual, ok := typ.QualifiedName(); ok && isOfQual.Namespace == "System" && isOfQual.Name == "String" {
			if _, ok, _ := target.ToString(false); ok {
				switch targetQual.Name {
				case "boolean", "integer", "decimal", "unsignedInt", "positiveInt":
				default:
					return Boolean(true), nil
				}
			}
		}
	}
	return Boolean(false), nil
}

// asType implements `as` per spec.md §4.5: narrows to the single element
// if it matches, or yields empty.
func asType(ctx context.Context, target Element, asOf TypeSpecifier) (Collection, error) {
	typ, ok := resolveType(ctx, asOf)
	if !ok {
		return nil, NewModelError("as", ErrUnknownVariable)
	}
	if subTypeOf(ctx, target.TypeInfo(), typ) {
		return Collection{target}, nil
	}
	return nil, nil
}

// --- environment variables ($this aside; %name and user variables) ---

type envKey struct{}

// systemVariables pre-populates the well-known external constants every
// FHIRPath environment exposes (spec.md §3's Variable AST node covers
// %name generically; these three are the standard ones), per
// SPEC_FULL.md's supplemented-features section.
var systemVariables = map[string]Collection{
	"ucum":  {String("http://unitsofmeasure.org")},
	"loinc": {String("http://loinc.org")},
	"sct":   {String("http://snomed.info/sct")},
}

// WithEnv binds an environment variable (%name). When ctx already carries
// an env frame, the binding is written into that frame in place and ctx is
// returned unchanged, so every context sharing the frame sees it; otherwise
// a new frame seeded with the system constants is installed on a derived
// context.
func WithEnv(ctx context.Context, name string, value Collection) context.Context {
	frame, ok := envStackFrame(ctx)
	if !ok {
		ctx, frame = withNewEnvStackFrame(ctx)
	}
	frame[name] = value
	return ctx
}

func withNewEnvStackFrame(ctx context.Context) (context.Context, map[string]Collection) {
	frame, ok := envStackFrame(ctx)
	if !ok {
		frame = make(map[string]Collection, len(systemVariables))
		maps.Copy(frame, systemVariables)
	}
	cloned := maps.Clone(frame)
	return context.WithValue(ctx, envKey{}, cloned), cloned
}

func envStackFrame(ctx context.Context) (map[string]Collection, bool) {
	v, ok := ctx.Value(envKey{}).(map[string]Collection)
	return v, ok
}

func envValue(ctx context.Context, name string) (Collection, bool) {
	frame, ok := envStackFrame(ctx)
	if !ok {
		return nil, false
	}
	v, ok := frame[name]
	return v, ok
}

// --- function-call scope ($this/$index/$total within a lambda) ---

type functionCtxKey struct{}

// functionScope tracks the lambda-local bindings spec.md §4.6 requires for
// where/select/repeat/aggregate/sort: the current iteration element
// ($this), its index ($index), and (only inside aggregate) the running
// total ($total).
type functionScope struct {
	this      Element
	index     int
	aggregate bool
	total     Collection
}

func withFunctionScope(ctx context.Context, scope functionScope) context.Context {
	return context.WithValue(ctx, functionCtxKey{}, scope)
}

func getFunctionScope(ctx context.Context) (functionScope, bool) {
	s, ok := ctx.Value(functionCtxKey{}).(functionScope)
	return s, ok
}

// --- function & tracer registries ---

type functionsKey struct{}

// WithFunctions overlays additional or replacement functions onto the
// default registry (spec.md §4.6), useful for host-specific extension
// functions.
func WithFunctions(ctx context.Context, functions Functions) context.Context {
	all := getFunctions(ctx)
	maps.Copy(all, functions)
	return context.WithValue(ctx, functionsKey{}, all)
}

func getFunctions(ctx context.Context) Functions {
	fns, ok := ctx.Value(functionsKey{}).(Functions)
	if !ok {
		return maps.Clone(defaultFunctions)
	}
	return fns
}

func getFunction(ctx context.Context, name string) (Function, bool) {
	fn, ok := getFunctions(ctx)[name]
	return fn, ok
}

type tracerKey struct{}

// Tracer is the trace() function's logging seam (spec.md §4.6's Utility
// group).
type Tracer interface {
	Log(name string, collection Collection) error
}

// StdoutTracer is the default Tracer, writing to stdout.
type StdoutTracer struct{}

func (StdoutTracer) Log(name string, collection Collection) error {
	return traceToStdout(name, collection)
}

// WithTracer installs a custom trace sink.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

func getTracer(ctx context.Context) Tracer {
	t, ok := ctx.Value(tracerKey{}).(Tracer)
	if !ok || t == nil {
		return StdoutTracer{}
	}
	return t
}

// --- model provider handle ---

type modelProviderKey struct{}

// WithModelProvider installs the ModelProvider the evaluator consults for
// profile conformance (conformsTo(), spec.md §4.4). is/as/ofType resolve
// types without it, and member access does not expand choice types
// through it.
func WithModelProvider(ctx context.Context, mp ModelProvider) context.Context {
	return context.WithValue(ctx, modelProviderKey{}, mp)
}

func getModelProvider(ctx context.Context) ModelProvider {
	mp, _ := ctx.Value(modelProviderKey{}).(ModelProvider)
	return mp
}

// --- evaluation instant (stable now()/today()/timeOfDay() per Evaluate call) ---

type evaluationInstantKey struct{}

func withEvaluationInstant(ctx context.Context) context.Context {
	if _, ok := ctx.Value(evaluationInstantKey{}).(time.Time); ok {
		return ctx
	}
	return context.WithValue(ctx, evaluationInstantKey{}, timeNow())
}

func evaluationInstant(ctx context.Context) time.Time {
	t, ok := ctx.Value(evaluationInstantKey{}).(time.Time)
	if !ok {
		return timeNow()
	}
	return t
}

// timeNow is the single call site for wall-clock time, isolated so tests
// can observe it is only read once per Evaluate invocation.
func timeNow() time.Time { return time.Now() }

// --- evaluator recursion depth ---

type maxEvalDepthKey struct{}
type evalDepthKey struct{}

// withMaxEvalDepth installs the recursion ceiling evalNode enforces on
// every nested call, independent of whether Analyze was ever run against
// the same AST (Options.MaxRecursionDepth's doc comment promises to bound
// "evaluator/analyzer recursion", not analyzer recursion alone).
func withMaxEvalDepth(ctx context.Context, max int) context.Context {
	return context.WithValue(ctx, maxEvalDepthKey{}, max)
}

func maxEvalDepth(ctx context.Context) int {
	max, ok := ctx.Value(maxEvalDepthKey{}).(int)
	if !ok || max <= 0 {
		return DefaultMaxRecursionDepth
	}
	return max
}

// enterEvalDepth increments the nested-evaluation depth carried on ctx,
// returning an error once it exceeds the configured ceiling. Grounded on
// the teacher's AnalysisContext.push_scope/pop_scope depth bookkeeping
// (originally from the octofhir-fhirpath analyzer this engine's static
// analyzer also mirrors), adapted here to guard the tree-walking
// evaluator itself rather than only the pre-evaluation analysis pass.
func enterEvalDepth(ctx context.Context) (context.Context, error) {
	depth := 0
	if d, ok := ctx.Value(evalDepthKey{}).(int); ok {
		depth = d
	}
	depth++
	if depth > maxEvalDepth(ctx) {
		return ctx, ErrRecursionLimit
	}
	return context.WithValue(ctx, evalDepthKey{}, depth), nil
}
