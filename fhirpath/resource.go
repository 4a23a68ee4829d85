package fhirpath

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Resource is the input value contract for opaque FHIR nodes (spec.md §6):
// a resource-type tag plus a property accessor, backing the Value model's
// Resource case. Callers (the out-of-scope package manager / HTTP clients
// that materialize FHIR instances) implement this over whatever in-memory
// representation they already have; the engine never requires a concrete
// struct.
type Resource interface {
	// ResourceType returns the resource's type name ("Patient", "Observation",
	// ...), or "" if this node is a complex-type value rather than a
	// top-level resource.
	ResourceType() string
	// GetProperty returns the named child value(s) and whether the property
	// is present at all (distinguishing "absent" from "present but empty").
	GetProperty(name string) (Collection, bool)
	// PropertyNames enumerates every concrete property name present on this
	// node, used when every child is requested (Children with no name). The
	// evaluator does not expand choice types: `value` does not match a
	// `valueX` property.
	PropertyNames() []string
}

// jsonResource is the reference Resource implementation backing JsonValue
// and the in-memory Model Provider's test fixtures: a resource/complex-type
// node materialized directly from decoded JSON (map[string]any / []any).
//
// Grounded on the teacher's treatment of FHIR resources as generated Go
// structs satisfying fhirpath.Element directly (fhirpath/types.go); since
// this engine has no generated resource types (no StructureDefinition
// codegen, per spec.md §1's explicit non-goal), it instead navigates raw
// decoded JSON, the same approach google-cql's FHIR retriever and
// lschmierer-fhirpath-lab-go's exerciser use for untyped input.
type jsonResource struct {
	typeName string
	data     map[string]any
}

// NewResource wraps decoded FHIR JSON (a map produced by encoding/json) as
// a Resource. The type name is read from the object's own "resourceType"
// field ("" when the field is absent).
func NewResource(data map[string]any) Resource {
	typeName, _ := data["resourceType"].(string)
	return jsonResource{typeName: typeName, data: data}
}

// NewResourceElement wraps decoded FHIR JSON as an Element directly, for
// use as Evaluate's root argument; NewResource alone only returns the
// Resource contract, not something that satisfies Element.
func NewResourceElement(data map[string]any) Element {
	return resourceElement{res: NewResource(data)}
}

func (r jsonResource) ResourceType() string { return r.typeName }

func (r jsonResource) PropertyNames() []string {
	names := make([]string, 0, len(r.data))
	for k := range r.data {
		if k == "resourceType" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetProperty expands a repeating (array-valued) property into one element
// per item, matching FHIRPath's "collections are the only aggregate"
// model (spec.md §2): a FHIR array property is not itself a JsonValue, it
// is several sibling elements sharing the property name.
func (r jsonResource) GetProperty(name string) (Collection, bool) {
	v, present := r.data[name]
	if !present {
		return nil, false
	}
	if items, ok := v.([]any); ok {
		out := make(Collection, len(items))
		for i, item := range items {
			out[i] = jsonToElement(item)
		}
		return out, true
	}
	return Collection{jsonToElement(v)}, true
}

// JsonValue wraps an untyped structural JSON node (spec.md §3's JsonValue
// case), used when navigating data the Model Provider has no schema for.
type JsonValue struct {
	defaultConversionError[JsonValue]
	Raw any
}

func jsonToElement(v any) Element {
	switch t := v.(type) {
	case nil:
		return JsonValue{Raw: nil}
	case bool:
		return Boolean(t)
	case string:
		return String(t)
	case float64:
		return decimalFromFloat(t)
	case map[string]any:
		if _, hasType := t["resourceType"]; hasType {
			return resourceElement{NewResource(t)}
		}
		return JsonValue{Raw: t}
	case []any:
		return JsonValue{Raw: t}
	default:
		return JsonValue{Raw: t}
	}
}

func decimalFromFloat(f float64) Decimal {
	d, _, err := apdFromFloat(f)
	if err != nil {
		return Decimal{}
	}
	return Decimal{Value: d}
}

func (j JsonValue) Children(name ...string) Collection {
	obj, ok := j.Raw.(map[string]any)
	if !ok {
		return nil
	}
	var out Collection
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if len(name) > 0 {
			found := false
			for _, n := range name {
				if n == k {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if items, ok := obj[k].([]any); ok {
			for _, item := range items {
				out = append(out, jsonToElement(item))
			}
			continue
		}
		out = append(out, jsonToElement(obj[k]))
	}
	return out
}
func (j JsonValue) ToString(explicit bool) (String, bool, error) {
	if s, ok := j.Raw.(string); ok {
		return String(s), true, nil
	}
	if !explicit {
		return "", false, nil
	}
	buf, err := json.Marshal(j.Raw)
	if err != nil {
		return "", false, err
	}
	return String(buf), true, nil
}
func (j JsonValue) Equal(other Element) (eq bool, ok bool) {
	o, isJSON := other.(JsonValue)
	if !isJSON {
		return false, true
	}
	ab, _ := json.Marshal(j.Raw)
	bb, _ := json.Marshal(o.Raw)
	return string(ab) == string(bb), true
}
func (j JsonValue) Equivalent(other Element) bool {
	eq, _ := j.Equal(other)
	return eq
}
func (j JsonValue) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Any", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (j JsonValue) MarshalJSON() ([]byte, error) { return json.Marshal(j.Raw) }
func (j JsonValue) String() string {
	buf, err := json.Marshal(j.Raw)
	if err != nil {
		return "null"
	}
	return string(buf)
}

// resourceElement adapts a Resource into an Element so it can live inside a
// Collection alongside primitives, delegating navigation to GetProperty.
type resourceElement struct {
	res Resource
}

func (r resourceElement) Children(name ...string) Collection {
	var out Collection
	names := name
	if len(names) == 0 {
		names = r.res.PropertyNames()
	}
	for _, n := range names {
		if v, ok := r.res.GetProperty(n); ok {
			out = append(out, v...)
		}
	}
	return out
}
func (r resourceElement) ToBoolean(bool) (Boolean, bool, error)   { return false, false, conversionError[resourceElement, Boolean]() }
func (r resourceElement) ToString(bool) (String, bool, error)    { return "", false, conversionError[resourceElement, String]() }
func (r resourceElement) ToInteger(bool) (Integer, bool, error)  { return 0, false, conversionError[resourceElement, Integer]() }
func (r resourceElement) ToLong(bool) (Long, bool, error)        { return 0, false, conversionError[resourceElement, Long]() }
func (r resourceElement) ToDecimal(bool) (Decimal, bool, error)  { return Decimal{}, false, conversionError[resourceElement, Decimal]() }
func (r resourceElement) ToDate(bool) (Date, bool, error)        { return Date{}, false, conversionError[resourceElement, Date]() }
func (r resourceElement) ToTime(bool) (Time, bool, error)        { return Time{}, false, conversionError[resourceElement, Time]() }
func (r resourceElement) ToDateTime(bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[resourceElement, DateTime]()
}
func (r resourceElement) ToQuantity(bool) (Quantity, bool, error) {
	return Quantity{}, false, conversionError[resourceElement, Quantity]()
}
func (r resourceElement) Equal(other Element) (eq bool, ok bool) {
	o, isRes := other.(resourceElement)
	if !isRes {
		return false, true
	}
	return fmt.Sprintf("%v", r.res) == fmt.Sprintf("%v", o.res), true
}
func (r resourceElement) Equivalent(other Element) bool {
	eq, _ := r.Equal(other)
	return eq
}
func (r resourceElement) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "FHIR", Name: r.res.ResourceType(), BaseType: TypeSpecifier{Namespace: "FHIR", Name: "DomainResource"}}
}
func (r resourceElement) MarshalJSON() ([]byte, error) { return json.Marshal(r.res) }
func (r resourceElement) String() string               { return r.res.ResourceType() }

// HasValue reports whether this node carries a primitive value at all,
// satisfying spec.md §4.6's `hasValue()` function.
func (r resourceElement) HasValue() bool { return false }

// asResource unwraps an Element back to the Resource it was built from, for
// functions like conformsTo() and resolve() that need the raw resource
// rather than its Element projection.
func asResource(e Element) (Resource, bool) {
	r, ok := e.(resourceElement)
	if !ok {
		return nil, false
	}
	return r.res, true
}
