package fhirpath

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// TypeInfo is the reflection-info capability every type-describing Element
// satisfies (spec.md §3's TypeInfoObject and §4.6's `type()` function),
// grounded on the teacher's TypeInfo interface (fhirpath/types.go).
type TypeInfo interface {
	Element
	QualifiedName() (TypeSpecifier, bool)
	BaseTypeName() (TypeSpecifier, bool)
}

// SimpleTypeInfo describes a primitive or enum-like type with no element
// structure of its own (System.Boolean, System.String, ...).
type SimpleTypeInfo struct {
	defaultConversionError[SimpleTypeInfo]
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	BaseType  TypeSpecifier `json:"baseType"`
}

func (i SimpleTypeInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{Namespace: i.Namespace, Name: i.Name}, true
}
func (i SimpleTypeInfo) BaseTypeName() (TypeSpecifier, bool) { return i.BaseType, true }
func (i SimpleTypeInfo) Children(name ...string) Collection {
	var children Collection
	if len(name) == 0 || slices.Contains(name, "namespace") {
		children = append(children, String(i.Namespace))
	}
	if len(name) == 0 || slices.Contains(name, "name") {
		children = append(children, String(i.Name))
	}
	if len(name) == 0 || slices.Contains(name, "baseType") {
		children = append(children, i.BaseType)
	}
	return children
}
func (i SimpleTypeInfo) Equal(other Element) (eq bool, ok bool) { return i == other, true }
func (i SimpleTypeInfo) Equivalent(other Element) bool {
	eq, _ := i.Equal(other)
	return eq
}
func (i SimpleTypeInfo) TypeInfo() TypeInfo {
	return ClassInfo{
		Namespace: "System",
		Name:      "SimpleTypeInfo",
		BaseType:  TypeSpecifier{Namespace: "System", Name: "Any"},
		Element: []ClassInfoElement{
			{Name: "namespace", Type: TypeSpecifier{Namespace: "System", Name: "String"}},
			{Name: "name", Type: TypeSpecifier{Namespace: "System", Name: "String"}},
			{Name: "baseType", Type: TypeSpecifier{Namespace: "System", Name: "TypeSpecifier"}},
		},
	}
}
func (i SimpleTypeInfo) MarshalJSON() ([]byte, error) {
	type alias SimpleTypeInfo
	return json.Marshal(alias(i))
}
func (i SimpleTypeInfo) String() string {
	buf, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "null"
	}
	return string(buf)
}

// ClassInfo describes a structured (Resource or complex) type with elements,
// the shape the Model Provider's enumerate-children operation (spec.md
// §4.4.c) returns for a concrete FHIR type.
type ClassInfo struct {
	defaultConversionError[ClassInfo]
	Namespace string             `json:"namespace"`
	Name      string             `json:"name"`
	BaseType  TypeSpecifier      `json:"baseType"`
	Element   []ClassInfoElement `json:"element"`
}

func (i ClassInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{Namespace: i.Namespace, Name: i.Name}, true
}
func (i ClassInfo) BaseTypeName() (TypeSpecifier, bool) { return i.BaseType, true }
func (i ClassInfo) Children(name ...string) Collection {
	var children Collection
	if len(name) == 0 || slices.Contains(name, "namespace") {
		children = append(children, String(i.Namespace))
	}
	if len(name) == 0 || slices.Contains(name, "name") {
		children = append(children, String(i.Name))
	}
	if len(name) == 0 || slices.Contains(name, "baseType") {
		children = append(children, i.BaseType)
	}
	if len(name) == 0 || slices.Contains(name, "element") {
		for _, e := range i.Element {
			children = append(children, e)
		}
	}
	return children
}
func (i ClassInfo) Equal(other Element) (eq bool, ok bool) {
	o, ok := other.(ClassInfo)
	if !ok {
		return false, true
	}
	if i.Namespace != o.Namespace || i.Name != o.Name || i.BaseType != o.BaseType || len(i.Element) != len(o.Element) {
		return false, true
	}
	for idx, e := range i.Element {
		if e != o.Element[idx] {
			return false, true
		}
	}
	return true, true
}
func (i ClassInfo) Equivalent(other Element) bool {
	eq, _ := i.Equal(other)
	return eq
}
func (i ClassInfo) TypeInfo() TypeInfo {
	return ClassInfo{
		Namespace: "System",
		Name:      "ClassInfo",
		BaseType:  TypeSpecifier{Namespace: "System", Name: "Any"},
	}
}
func (i ClassInfo) MarshalJSON() ([]byte, error) {
	type alias ClassInfo
	return json.Marshal(alias(i))
}
func (i ClassInfo) String() string {
	buf, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "null"
	}
	return string(buf)
}

// ClassInfoElement is one property of a ClassInfo.
type ClassInfoElement struct {
	defaultConversionError[ClassInfoElement]
	Name string        `json:"name"`
	Type TypeSpecifier `json:"type"`
	// OneBased marks a 1-based FHIR choice expansion hint; unused outside
	// display but kept for parity with ClassInfo.Element entries.
	OneBased bool `json:"isOneBased,omitempty"`
}

func (i ClassInfoElement) Children(name ...string) Collection {
	var children Collection
	if len(name) == 0 || slices.Contains(name, "name") {
		children = append(children, String(i.Name))
	}
	if len(name) == 0 || slices.Contains(name, "type") {
		children = append(children, i.Type)
	}
	return children
}
func (i ClassInfoElement) Equal(other Element) (eq bool, ok bool) { return i == other, true }
func (i ClassInfoElement) Equivalent(other Element) bool {
	eq, _ := i.Equal(other)
	return eq
}
func (i ClassInfoElement) TypeInfo() TypeInfo {
	return ClassInfo{Namespace: "System", Name: "ClassInfoElement", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (i ClassInfoElement) MarshalJSON() ([]byte, error) {
	type alias ClassInfoElement
	return json.Marshal(alias(i))
}
func (i ClassInfoElement) String() string {
	buf, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "null"
	}
	return string(buf)
}

// ListTypeInfo describes List<T> as returned by `type()` on a multi-element
// collection focus, per spec.md §4.6's `type` function.
type ListTypeInfo struct {
	defaultConversionError[ListTypeInfo]
	ElementType TypeSpecifier `json:"elementType"`
}

func (i ListTypeInfo) QualifiedName() (TypeSpecifier, bool)  { return TypeSpecifier{}, false }
func (i ListTypeInfo) BaseTypeName() (TypeSpecifier, bool)   { return TypeSpecifier{}, false }
func (i ListTypeInfo) Children(name ...string) Collection    { return Collection{i.ElementType} }
func (i ListTypeInfo) Equal(other Element) (eq bool, ok bool) { return i == other, true }
func (i ListTypeInfo) Equivalent(other Element) bool {
	eq, _ := i.Equal(other)
	return eq
}
func (i ListTypeInfo) TypeInfo() TypeInfo {
	return ClassInfo{Namespace: "System", Name: "ListTypeInfo", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (i ListTypeInfo) MarshalJSON() ([]byte, error) {
	type alias ListTypeInfo
	return json.Marshal(alias(i))
}
func (i ListTypeInfo) String() string {
	buf, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "null"
	}
	return string(buf)
}

// TypeSpecifier is a first-class reference to a type name, optionally
// namespaced (`FHIR.Patient` vs bare `Patient`) and optionally a List<T>
// wrapper. Used both as AST type-specifier payload (TypeOpNode.Type) and as
// the runtime TypeInfoObject value (spec.md §3).
//
// Open Question per spec.md §9: whether type().name renders the namespace
// for FHIR types is not configurable; String() always includes the
// namespace when one is set. See DESIGN.md.
type TypeSpecifier struct {
	defaultConversionError[TypeSpecifier]
	Namespace string
	Name      string
	List      bool
}

// ParseTypeSpecifier parses `Namespace.Name` or bare `Name` text (as found
// after `is`/`as`/`ofType(...)` in source), stripping backtick delimiters
// and an optional List<...> wrapper.
func ParseTypeSpecifier(s string) TypeSpecifier {
	list := false
	if strings.HasPrefix(s, "List<") && strings.HasSuffix(s, ">") {
		list = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "List<"), ">")
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) == 1 {
		return TypeSpecifier{Name: strings.Trim(parts[0], "`"), List: list}
	}
	return TypeSpecifier{Namespace: strings.Trim(parts[0], "`"), Name: strings.Trim(parts[1], "`"), List: list}
}

func (t TypeSpecifier) Children(name ...string) Collection    { return nil }
func (t TypeSpecifier) Equal(other Element) (eq bool, ok bool) { return t == other, true }
func (t TypeSpecifier) Equivalent(other Element) bool {
	eq, _ := t.Equal(other)
	return eq
}
func (t TypeSpecifier) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "TypeSpecifier", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (t TypeSpecifier) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }
func (t TypeSpecifier) String() string {
	var s string
	if t.Namespace != "" {
		s = fmt.Sprintf("%s.%s", t.Namespace, t.Name)
	} else {
		s = t.Name
	}
	if t.List {
		return fmt.Sprintf("List<%s>", s)
	}
	return s
}

// systemTypesMap enumerates the built-in System.* primitive types so the
// analyzer and `type()` function can resolve them without a Model Provider
// round trip.
func systemTypesMap() map[string]TypeSpecifier {
	names := []string{
		"Any", "Boolean", "String", "Integer", "Long", "Decimal",
		"Date", "DateTime", "Time", "Quantity",
	}
	m := make(map[string]TypeSpecifier, len(names))
	for _, n := range names {
		m[n] = TypeSpecifier{Namespace: "System", Name: n}
	}
	return m
}

// isStringish reports whether e converts (explicitly) to a String; used by
// temporal/Quantity Equal implementations to decide whether to delegate
// comparison to the other operand's String-aware Equal.
func isStringish(e Element) bool {
	switch e.(type) {
	case String:
		return true
	}
	if hv, ok := e.(hasValuer); ok {
		return hv.HasValue() // FHIR string-backed primitives delegate too
	}
	return false
}

// canDelegateNumeric reports whether e is one of Integer/Long/Decimal, so a
// Quantity/Decimal Equal can try the other direction.
func canDelegateNumeric(e Element) bool {
	switch e.(type) {
	case Integer, Long, Decimal:
		return true
	}
	return false
}

// canDelegateDecimal reports whether e natively implements decimal-capable
// arithmetic dispatch (Integer/Long delegate their Equal back to Decimal).
func canDelegateDecimal(e Element) bool {
	switch e.(type) {
	case Integer, Long:
		return true
	}
	return false
}

// delegatesToDateTime reports whether e is a DateTime (so Date.Equal can
// hand comparison back to DateTime's wider logic) per spec.md §3's
// "coarser common precision" rule.
func delegatesToDateTime(e Element) bool {
	_, ok := e.(DateTime)
	return ok
}
