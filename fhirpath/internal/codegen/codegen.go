// Package codegen holds the small naming helpers a generator sits on top
// of when it turns a ClassInfo/ClassInfoElement pair into canonical Go or
// path-segment text. It has no dependency on the fhirpath package itself
// (it only ever sees plain strings), so a future StructureDefinition
// generator can import it without pulling in the evaluator.
//
// Grounded on the teacher's internal/generate package, which leans on the
// same strcase.ToCamel calls for interaction and method names
// (capabilities.go, capabilities_wrapper.go, client.go).
package codegen

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// PropertyFieldName turns a FHIR element name (as it appears in a
// ClassInfoElement.Name, e.g. "valueQuantity" or "birthDate") into the
// exported Go field name a generated struct would use for it.
func PropertyFieldName(elementName string) string {
	return strcase.ToCamel(elementName)
}

// ChoiceFieldName builds the generated field name for one suffix of a
// FHIR choice element, e.g. ("value", "Quantity") -> "ValueQuantity".
func ChoiceFieldName(baseProperty, suffix string) string {
	return strcase.ToCamel(baseProperty) + strcase.ToCamel(suffix)
}

// PathSegmentName normalizes an element name into the lowerCamel form the
// canonical Path model (fhirpath.Path) expects for property segments.
// FHIR element names are already lowerCamel in the spec, but generator
// input (StructureDefinition element ids) sometimes carries a
// backslash-separated slice name; PathSegmentName strips everything after
// the first colon or backslash so the generated segment matches the plain
// property name a FHIRPath expression would actually navigate. A trailing
// choice-type marker "[x]" is kept as is.
func PathSegmentName(elementID string) string {
	name := elementID
	if i := strings.IndexAny(name, ":\\"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	suffix := ""
	if strings.HasSuffix(name, "[x]") {
		name, suffix = strings.TrimSuffix(name, "[x]"), "[x]"
	}
	return strcase.ToLowerCamel(name) + suffix
}

// TypeName turns a StructureDefinition's declared type name into the
// canonical TypeSpecifier.Name text (FHIR type names are already
// UpperCamel, but generator input occasionally carries a trailing
// profile suffix after a pipe).
func TypeName(declaredType string) string {
	name := declaredType
	if i := strings.IndexByte(name, '|'); i >= 0 {
		name = name[:i]
	}
	return strcase.ToCamel(strings.TrimSpace(name))
}
