package fhirpath

import (
	"context"
	"errors"
	"fmt"
)

// ModelProvider is the abstract schema oracle the core depends on (spec.md
// §4.4): everything the engine needs to know about the FHIR type system —
// resource/complex/primitive type names, property types, choice-type
// suffixes, subtype relationships, and profile conformance — arrives
// through this interface rather than being baked into the engine.
//
// Every operation is async-capable (accepts a context.Context) because a
// real implementation fetches StructureDefinitions from a package cache or
// network source (the out-of-scope package manager / HTTP client, per
// spec.md §1); ModelProvider itself never does I/O.
type ModelProvider interface {
	// TypeByName looks up a type by name, returning its reflection info.
	// ok is false if the name is not a known type at all.
	TypeByName(ctx context.Context, name TypeSpecifier) (TypeInfo, bool, error)
	// PropertyType looks up a property on a parent type, returning the
	// child's type (possibly a ListTypeInfo for repeating elements, or
	// multiple candidate types for a choice element).
	PropertyType(ctx context.Context, parent TypeSpecifier, property string) ([]TypeInfo, bool, error)
	// Children enumerates every declared child property of a parent type.
	Children(ctx context.Context, parent TypeSpecifier) ([]ClassInfoElement, error)
	// TypeNames lists every known resource, complex, and primitive type
	// name (spec.md §6's resource_types/complex_types/primitive_types
	// options feed this).
	TypeNames(ctx context.Context) (resourceTypes, complexTypes, primitiveTypes []string, err error)
	// IsSubtypeOf tests FHIR inheritance: does `sub` derive from (or equal)
	// `base`?
	IsSubtypeOf(ctx context.Context, sub, base TypeSpecifier) (bool, error)
	// ResolveChoiceType resolves `Foo.value[x]` given a concrete suffix,
	// e.g. ("Observation", "value", "Quantity") -> ("valueQuantity", true).
	ResolveChoiceType(ctx context.Context, parent TypeSpecifier, baseProperty, suffix string) (propertyName string, ok bool, err error)
	// ChoiceSuffixes enumerates the legal suffixes for a choice property,
	// e.g. ("Observation", "value") -> ["String", "Quantity", "CodeableConcept", ...].
	ChoiceSuffixes(ctx context.Context, parent TypeSpecifier, baseProperty string) ([]string, error)
	// ConformsTo validates a resource against a profile URL (spec.md
	// §4.4.g). Returns ErrNoProfileValidator if no validator is wired.
	ConformsTo(ctx context.Context, resource Resource, profileURL string) (ValidationOutcome, error)
}

// ValidationOutcome is the structured result of ConformsTo.
type ValidationOutcome struct {
	Valid  bool
	Issues []string
}

// ModelError wraps a failure originating from a ModelProvider
// implementation (spec.md §4.4: "All operations fail with ModelError if
// the provider cannot reach its backing source").
type ModelError struct {
	Op  string
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model provider: %s: %v", e.Op, e.Err) }
func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError wraps err as a ModelError tagged with the failing
// operation name.
func NewModelError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ModelError{Op: op, Err: err}
}

// Sentinel errors checked with errors.Is, per SPEC_FULL's ambient-stack
// error-handling section.
var (
	ErrUnknownVariable          = errors.New("fhirpath: unknown variable")
	ErrModelProviderUnavailable = errors.New("fhirpath: no model provider configured")
	ErrNoProfileValidator       = errors.New("fhirpath: model provider has no profile validator")
	ErrRecursionLimit           = errors.New("fhirpath: recursion depth limit exceeded")
	ErrCollectionLimit          = errors.New("fhirpath: collection size limit exceeded")
	ErrCancelled                = errors.New("fhirpath: evaluation cancelled")
)

// requireModelProvider returns ErrModelProviderUnavailable wrapped with op
// context when mp is nil. conformsTo() is its only caller; is/as/ofType do
// not require a provider.
func requireModelProvider(mp ModelProvider, op string) error {
	if mp == nil {
		return fmt.Errorf("%s: %w", op, ErrModelProviderUnavailable)
	}
	return nil
}
