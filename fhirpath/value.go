package fhirpath

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Element is the capability set every value in the Value Model implements:
// Boolean, String, Integer, Long, Decimal, Date, Time, DateTime, Quantity,
// Resource, JsonValue, and the TypeInfo family all satisfy it.
//
// Grounded on the teacher's fhirpath.Element (fhirpath/types.go): each
// conversion method reports both whether the target type is reachable at
// all (ok) and, for reachable but malformed input, an error distinct from
// "not applicable".
type Element interface {
	// Children returns all child nodes with the given names, or every
	// child when no name is given.
	Children(name ...string) Collection
	ToBoolean(explicit bool) (v Boolean, ok bool, err error)
	ToString(explicit bool) (v String, ok bool, err error)
	ToInteger(explicit bool) (v Integer, ok bool, err error)
	ToLong(explicit bool) (v Long, ok bool, err error)
	ToDecimal(explicit bool) (v Decimal, ok bool, err error)
	ToDate(explicit bool) (v Date, ok bool, err error)
	ToTime(explicit bool) (v Time, ok bool, err error)
	ToDateTime(explicit bool) (v DateTime, ok bool, err error)
	ToQuantity(explicit bool) (v Quantity, ok bool, err error)
	Equal(other Element) (eq bool, ok bool)
	Equivalent(other Element) bool
	TypeInfo() TypeInfo
	json.Marshaler
	fmt.Stringer
}

// hasValuer is satisfied by FHIR primitive elements that may carry
// extensions without a value (JSON null with sibling `_name`).
type hasValuer interface {
	Element
	HasValue() bool
}

// cmpElement is implemented by every orderable Element: String, Integer,
// Long, Decimal, Quantity, Date, Time, DateTime.
type cmpElement interface {
	Element
	// Cmp may report ok=false: comparing incompatible Quantity units
	// yields Empty rather than an error, per spec.md §4.7.
	Cmp(other Element) (cmp int, ok bool, err error)
}

type multiplyElement interface {
	Element
	Multiply(ctx context.Context, other Element) (Element, error)
}

type divideElement interface {
	Element
	Divide(ctx context.Context, other Element) (Element, error)
}

type divElement interface {
	Element
	Div(ctx context.Context, other Element) (Element, error)
}

type modElement interface {
	Element
	Mod(ctx context.Context, other Element) (Element, error)
}

type addElement interface {
	Element
	Add(ctx context.Context, other Element) (Element, error)
}

type subtractElement interface {
	Element
	Subtract(ctx context.Context, other Element) (Element, error)
}

type apdContextKey struct{}

// defaultDecimalPrecision keeps 34 significant digits (roughly
// Decimal128), comfortably over spec.md §3's "≥28 significant digits".
const defaultDecimalPrecision uint32 = 34

var defaultAPDContext = apd.BaseContext.WithPrecision(defaultDecimalPrecision)

// WithAPDContext overrides the apd.Context used for Decimal arithmetic
// during evaluation, e.g. to widen precision for a specific call.
func WithAPDContext(ctx context.Context, apdCtx *apd.Context) context.Context {
	return context.WithValue(ctx, apdContextKey{}, apdCtx)
}

func apdContext(ctx context.Context) *apd.Context {
	if ctx != nil {
		if c, ok := ctx.Value(apdContextKey{}).(*apd.Context); ok && c != nil {
			return c
		}
	}
	return defaultAPDContext
}

// Collection is an ordered sequence of Elements — the only shape a public
// evaluation returns, per spec.md §3 invariant I1.
type Collection []Element

// Equal reports structural equality per spec.md §4.3: Empty operands make
// equality undefined (ok=false); differing lengths are a definite false.
func (c Collection) Equal(other Collection) (eq bool, ok bool) {
	if len(c) == 0 || len(other) == 0 {
		return false, false
	}
	if len(c) != len(other) {
		return false, true
	}
	for i, e := range c {
		eq, ok := e.Equal(other[i])
		if !ok || !eq {
			return false, ok
		}
	}
	return true, true
}

// Equivalent implements `~`: order-insensitive, always decidable.
func (c Collection) Equivalent(other Collection) bool {
	if len(c) != len(other) {
		return false
	}
	used := make([]bool, len(other))
outer:
	for _, e := range c {
		for i, o := range other {
			if used[i] {
				continue
			}
			if e.Equivalent(o) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// Cmp compares two singleton collections, delegating to the primitive's
// cmpElement capability (falling back through toPrimitive for FHIR
// primitives).
func (c Collection) Cmp(other Collection) (cmp int, ok bool, err error) {
	if len(c) == 0 || len(other) == 0 {
		return 0, false, nil
	}
	if len(c) != 1 || len(other) != 1 {
		return 0, false, fmt.Errorf("cannot compare collections with len != 1: %v and %v", c, other)
	}
	left, ok := c[0].(cmpElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(cmpElement)
	}
	if !ok {
		return 0, false, fmt.Errorf("type %T is not orderable", c[0])
	}
	return left.Cmp(other[0])
}

// Distinct removes structurally-equal duplicates, keeping first occurrence
// order (spec.md §3 invariant I3).
func (c Collection) Distinct() Collection {
	var out Collection
	for _, e := range c {
		if !out.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// IsDistinct reports whether c already has no duplicates.
func (c Collection) IsDistinct() bool {
	return len(c.Distinct()) == len(c)
}

// Union concatenates and deduplicates two collections (`|`).
func (c Collection) Union(other Collection) Collection {
	if len(c) == 0 {
		return slices.Clone(other).Distinct()
	}
	if len(other) == 0 {
		return slices.Clone(c).Distinct()
	}
	var out Collection
	for _, e := range c {
		if !out.Contains(e) {
			out = append(out, e)
		}
	}
	for _, e := range other {
		if !out.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Intersect returns elements present in both collections, deduplicated.
func (c Collection) Intersect(other Collection) Collection {
	var out Collection
	for _, e := range c {
		if other.Contains(e) && !out.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Exclude returns elements of c not present in other.
func (c Collection) Exclude(other Collection) Collection {
	var out Collection
	for _, e := range c {
		if !other.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Combine concatenates without deduplicating.
func (c Collection) Combine(other Collection) Collection {
	if len(c) == 0 {
		return slices.Clone(other)
	}
	if len(other) == 0 {
		return slices.Clone(c)
	}
	combined := slices.Clone(c)
	return append(combined, other...)
}

// Contains reports structural membership (ignores ok, per teacher).
func (c Collection) Contains(element Element) bool {
	for _, e := range c {
		if eq, ok := e.Equal(element); ok && eq {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every element of c is contained in other.
func (c Collection) SubsetOf(other Collection) bool {
	for _, e := range c {
		if !other.Contains(e) {
			return false
		}
	}
	return true
}

// SupersetOf reports whether other is a subset of c.
func (c Collection) SupersetOf(other Collection) bool {
	return other.SubsetOf(c)
}

func (c Collection) Multiply(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(multiplyElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(multiplyElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only multiply Integer, Long, Decimal or Quantity, got %T", c[0])
	}
	res, err := left.Multiply(ctx, other[0])
	if err != nil {
		return nil, err
	}
	return Collection{res}, nil
}

func (c Collection) Divide(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(divideElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(divideElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only divide Integer, Long, Decimal or Quantity, got %T", c[0])
	}
	res, err := left.Divide(ctx, other[0])
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return Collection{res}, nil
}

func (c Collection) Div(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(divElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(divElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only div Integer, Long, Decimal, got %T", c[0])
	}
	res, err := left.Div(ctx, other[0])
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return Collection{res}, nil
}

func (c Collection) Mod(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(modElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(modElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only mod Integer, Long, Decimal, got %T", c[0])
	}
	res, err := left.Mod(ctx, other[0])
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return Collection{res}, nil
}

func (c Collection) Add(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(addElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(addElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only add Integer, Long, Decimal, Quantity, String or temporal, got %T", c[0])
	}
	res, err := left.Add(ctx, other[0])
	if err != nil {
		return nil, err
	}
	return Collection{res}, nil
}

func (c Collection) Subtract(ctx context.Context, other Collection) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok := c[0].(subtractElement)
	if !ok {
		prim, _ := toPrimitive(c[0])
		left, ok = prim.(subtractElement)
	}
	if !ok {
		return nil, fmt.Errorf("can only subtract Integer, Long, Decimal, Quantity or temporal, got %T", c[0])
	}
	res, err := left.Subtract(ctx, other[0])
	if err != nil {
		return nil, err
	}
	return Collection{res}, nil
}

// Concat implements `&`, treating Empty as an empty string on either side.
func (c Collection) Concat(other Collection) (Collection, error) {
	if len(c) > 1 {
		return nil, fmt.Errorf("left operand of & has len > 1: %v", c)
	}
	if len(other) > 1 {
		return nil, fmt.Errorf("right operand of & has len > 1: %v", other)
	}
	var left, right String
	if len(c) == 1 {
		s, ok, err := elementTo[String](c[0], false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("can only concat String, got left %T", c[0])
		}
		left = s
	}
	if len(other) == 1 {
		s, ok, err := elementTo[String](other[0], false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("can only concat String, got right %T", other[0])
		}
		right = s
	}
	return Collection{left + right}, nil
}

func (c Collection) String() string {
	if len(c) == 0 {
		return "{ }"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i, e := range c {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprint(&b, e)
	}
	b.WriteString(" }")
	return b.String()
}

// elementTo attempts to produce a value of type T from e, first trying its
// native conversion method and then falling back through toPrimitive for
// FHIR-primitive wrappers (e.g. a `code` element coercing to String).
func elementTo[T Element](e Element, explicit bool) (T, bool, error) {
	var zero T
	var v Element
	var ok bool
	var err error
	switch any(zero).(type) {
	case Boolean:
		v, ok, err = asElement(e.ToBoolean(explicit))
	case String:
		v, ok, err = asElement(e.ToString(explicit))
	case Integer:
		v, ok, err = asElement(e.ToInteger(explicit))
	case Long:
		v, ok, err = asElement(e.ToLong(explicit))
	case Decimal:
		v, ok, err = asElement(e.ToDecimal(explicit))
	case Date:
		v, ok, err = asElement(e.ToDate(explicit))
	case Time:
		v, ok, err = asElement(e.ToTime(explicit))
	case DateTime:
		v, ok, err = asElement(e.ToDateTime(explicit))
	case Quantity:
		v, ok, err = asElement(e.ToQuantity(explicit))
	default:
		return zero, false, fmt.Errorf("unsupported conversion target %T", zero)
	}
	if err != nil || !ok {
		return zero, ok, err
	}
	result, isT := v.(T)
	if !isT {
		return zero, false, nil
	}
	return result, true, nil
}

func asElement[T Element](v T, ok bool, err error) (Element, bool, error) {
	return v, ok, err
}

// toPrimitive unwraps a FHIR primitive Element (hasValuer) down to its
// underlying System type so arithmetic/comparison capability interfaces
// apply; non-primitives return themselves unchanged.
func toPrimitive(e Element) (Element, bool) {
	switch e.(type) {
	case Boolean, String, Integer, Long, Decimal, Date, Time, DateTime, Quantity:
		return e, true
	}
	if s, ok, err := e.ToString(false); err == nil && ok {
		return s, true
	}
	return e, false
}

// conversionError reports that values of type F can never convert to T.
func conversionError[F any, T Element]() error {
	var f F
	var t T
	return fmt.Errorf("value of type %T cannot be converted to type %T", f, t)
}

// implicitConversionError reports that f cannot be implicitly converted
// to T (an explicit conversion function may still succeed).
func implicitConversionError[F Element, T Element](f F) error {
	var t T
	return fmt.Errorf("value %T(%v) cannot be implicitly converted to %T", f, f, t)
}

// defaultConversionError is embedded by Elements (mostly TypeInfo family
// members) that support none of the scalar conversions.
type defaultConversionError[F any] struct{}

func (defaultConversionError[F]) ToBoolean(bool) (Boolean, bool, error) {
	return false, false, conversionError[F, Boolean]()
}
func (defaultConversionError[F]) ToString(bool) (String, bool, error) {
	return "", false, conversionError[F, String]()
}
func (defaultConversionError[F]) ToInteger(bool) (Integer, bool, error) {
	return 0, false, conversionError[F, Integer]()
}
func (defaultConversionError[F]) ToLong(bool) (Long, bool, error) {
	return 0, false, conversionError[F, Long]()
}
func (defaultConversionError[F]) ToDecimal(bool) (Decimal, bool, error) {
	return Decimal{}, false, conversionError[F, Decimal]()
}
func (defaultConversionError[F]) ToDate(bool) (Date, bool, error) {
	return Date{}, false, conversionError[F, Date]()
}
func (defaultConversionError[F]) ToTime(bool) (Time, bool, error) {
	return Time{}, false, conversionError[F, Time]()
}
func (defaultConversionError[F]) ToDateTime(bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[F, DateTime]()
}
func (defaultConversionError[F]) ToQuantity(bool) (Quantity, bool, error) {
	return Quantity{}, false, conversionError[F, Quantity]()
}

// Boolean is the System.Boolean primitive.
type Boolean bool

func (b Boolean) Children(name ...string) Collection { return nil }

func (b Boolean) ToBoolean(explicit bool) (Boolean, bool, error) { return b, true, nil }
func (b Boolean) ToString(explicit bool) (String, bool, error) {
	if explicit {
		return String(b.String()), true, nil
	}
	return "", false, implicitConversionError[Boolean, String](b)
}
func (b Boolean) ToInteger(explicit bool) (Integer, bool, error) {
	if explicit {
		if b {
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, implicitConversionError[Boolean, Integer](b)
}
func (b Boolean) ToLong(explicit bool) (Long, bool, error) {
	if explicit {
		if b {
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, implicitConversionError[Boolean, Long](b)
}
func (b Boolean) ToDecimal(explicit bool) (Decimal, bool, error) {
	if explicit {
		if b {
			return Decimal{Value: apd.New(1, 0)}, true, nil
		}
		return Decimal{Value: apd.New(0, 0)}, true, nil
	}
	return Decimal{}, false, implicitConversionError[Boolean, Decimal](b)
}
func (b Boolean) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, conversionError[Boolean, Date]() }
func (b Boolean) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, conversionError[Boolean, Time]() }
func (b Boolean) ToDateTime(explicit bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[Boolean, DateTime]()
}
func (b Boolean) ToQuantity(explicit bool) (Quantity, bool, error) {
	if explicit {
		d, _, _ := b.ToDecimal(true)
		return Quantity{Value: d, Unit: "1"}, true, nil
	}
	return Quantity{}, false, conversionError[Boolean, Quantity]()
}
func (b Boolean) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToBoolean(false)
	if err == nil && ok {
		return b == o, true
	}
	return false, true
}
func (b Boolean) Equivalent(other Element) bool {
	eq, ok := b.Equal(other)
	return ok && eq
}
func (b Boolean) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Boolean", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (b Boolean) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }
func (b Boolean) String() string               { return strconv.FormatBool(bool(b)) }

var (
	truthyStrings  = []string{"true", "t", "yes", "y", "1", "1.0"}
	falseyStrings  = []string{"false", "f", "no", "n", "0", "0.0"}
	collapseWSExpr = regexp.MustCompile(`[\t\r\n]`)
)

// String is the System.String primitive.
type String string

func (s String) Children(name ...string) Collection { return nil }

func (s String) ToBoolean(explicit bool) (Boolean, bool, error) {
	if explicit {
		low := strings.ToLower(string(s))
		if slices.Contains(truthyStrings, low) {
			return true, true, nil
		}
		if slices.Contains(falseyStrings, low) {
			return false, true, nil
		}
		return false, false, nil
	}
	return false, false, implicitConversionError[String, Boolean](s)
}
func (s String) ToString(explicit bool) (String, bool, error) { return s, true, nil }
func (s String) ToInteger(explicit bool) (Integer, bool, error) {
	if explicit {
		v, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return 0, false, nil
		}
		return Integer(v), true, nil
	}
	return 0, false, implicitConversionError[String, Integer](s)
}
func (s String) ToLong(explicit bool) (Long, bool, error) {
	if explicit {
		v, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return 0, false, nil
		}
		return Long(v), true, nil
	}
	return 0, false, implicitConversionError[String, Long](s)
}
func (s String) ToDecimal(explicit bool) (Decimal, bool, error) {
	if explicit {
		d, _, err := apd.NewFromString(string(s))
		if err != nil {
			return Decimal{}, false, nil
		}
		return Decimal{Value: d}, true, nil
	}
	return Decimal{}, false, implicitConversionError[String, Decimal](s)
}
func (s String) ToDate(explicit bool) (Date, bool, error) {
	if explicit {
		d, err := ParseDate(string(s))
		if err != nil {
			return Date{}, false, nil
		}
		return d, true, nil
	}
	return Date{}, false, implicitConversionError[String, Date](s)
}
func (s String) ToTime(explicit bool) (Time, bool, error) {
	if explicit {
		t, err := ParseTime(string(s))
		if err != nil {
			return Time{}, false, nil
		}
		return t, true, nil
	}
	return Time{}, false, implicitConversionError[String, Time](s)
}
func (s String) ToDateTime(explicit bool) (DateTime, bool, error) {
	if explicit {
		dt, err := ParseDateTime(string(s))
		if err != nil {
			return DateTime{}, false, nil
		}
		return dt, true, nil
	}
	return DateTime{}, false, implicitConversionError[String, DateTime](s)
}
func (s String) ToQuantity(explicit bool) (Quantity, bool, error) {
	q, err := ParseQuantity(string(s))
	if err != nil {
		return Quantity{}, false, nil
	}
	return q, true, nil
}
func (s String) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToString(false)
	if err == nil && ok {
		return s == o, true
	}
	return false, ok && err == nil
}
func (s String) Equivalent(other Element) bool {
	o, ok, err := other.ToString(false)
	if err != nil || !ok {
		return false
	}
	norm := func(x string) string {
		return collapseWSExpr.ReplaceAllString(strings.ToLower(strings.TrimSpace(x)), " ")
	}
	return norm(string(s)) == norm(string(o))
}
func (s String) Cmp(other Element) (cmp int, ok bool, err error) {
	o, ok, err := other.ToString(false)
	if err != nil || !ok {
		return 0, false, fmt.Errorf("cannot compare String to %T", other)
	}
	return strings.Compare(string(s), string(o)), true, nil
}
func (s String) Add(ctx context.Context, other Element) (Element, error) {
	o, ok, err := other.ToString(false)
	if err != nil {
		return nil, fmt.Errorf("cannot add %T to String", other)
	}
	if !ok {
		return nil, nil
	}
	return s + o, nil
}
func (s String) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "String", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }
func (s String) String() string               { return "'" + escapeString(string(s)) + "'" }

// Integer is the System.Integer primitive. It is stored as int64, but
// Integer literals and Integer-by-Integer addition, subtraction, and
// multiplication are limited to the signed 32-bit range: a literal or
// result outside it is an overflow error.
type Integer int64

func (i Integer) Children(name ...string) Collection { return nil }

func (i Integer) ToBoolean(explicit bool) (Boolean, bool, error) {
	if explicit {
		switch i {
		case 0:
			return false, true, nil
		case 1:
			return true, true, nil
		}
	}
	return false, false, implicitConversionError[Integer, Boolean](i)
}
func (i Integer) ToString(explicit bool) (String, bool, error) {
	return String(strconv.FormatInt(int64(i), 10)), true, nil
}
func (i Integer) ToInteger(explicit bool) (Integer, bool, error) { return i, true, nil }
func (i Integer) ToLong(explicit bool) (Long, bool, error)       { return Long(i), true, nil }
func (i Integer) ToDecimal(explicit bool) (Decimal, bool, error) {
	return Decimal{Value: apd.New(int64(i), 0)}, true, nil
}
func (i Integer) ToDate(explicit bool) (Date, bool, error) { return Date{}, false, conversionError[Integer, Date]() }
func (i Integer) ToTime(explicit bool) (Time, bool, error) { return Time{}, false, conversionError[Integer, Time]() }
func (i Integer) ToDateTime(explicit bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[Integer, DateTime]()
}
func (i Integer) ToQuantity(explicit bool) (Quantity, bool, error) {
	d, _, _ := i.ToDecimal(true)
	return Quantity{Value: d, Unit: "1"}, true, nil
}
func (i Integer) Equal(other Element) (eq bool, ok bool) {
	switch o := other.(type) {
	case Integer:
		return i == o, true
	}
	if prim, changed := toPrimitive(other); changed {
		if l, ok2, err := elementTo[Long](prim, false); err == nil && ok2 {
			return Long(i) == l, true
		}
		if d, ok2, err := elementTo[Decimal](prim, false); err == nil && ok2 {
			return decimalFromInt(int64(i)).Equal(d)
		}
	}
	return false, true
}
func (i Integer) Equivalent(other Element) bool {
	eq, ok := i.Equal(other)
	return ok && eq
}
func (i Integer) Cmp(other Element) (cmp int, ok bool, err error) {
	switch o := other.(type) {
	case Integer:
		return cmpInt64(int64(i), int64(o)), true, nil
	case Long:
		return cmpInt64(int64(i), int64(o)), true, nil
	case Decimal:
		return decimalFromInt(int64(i)).Cmp(o)
	}
	return 0, false, fmt.Errorf("cannot compare Integer to %T", other)
}
func (i Integer) Add(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer:
		return addOverflowInt64(int64(i), int64(o), 32)
	case Long, Decimal, Quantity:
		l, _, _ := i.ToLong(true)
		return delegateAdd(ctx, l, o)
	}
	return nil, fmt.Errorf("cannot add Integer and %T", other)
}
func (i Integer) Subtract(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer:
		return subOverflowInt64(int64(i), int64(o), 32)
	case Long, Decimal, Quantity:
		l, _, _ := i.ToLong(true)
		return delegateSubtract(ctx, l, o)
	}
	return nil, fmt.Errorf("cannot subtract %T from Integer", other)
}
func (i Integer) Multiply(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer:
		return mulOverflowInt64(int64(i), int64(o), 32)
	case Long, Decimal, Quantity:
		l, _, _ := i.ToLong(true)
		return delegateMultiply(ctx, l, o)
	}
	return nil, fmt.Errorf("cannot multiply Integer and %T", other)
}
func (i Integer) Divide(ctx context.Context, other Element) (Element, error) {
	d, _, _ := i.ToDecimal(true)
	return delegateDivide(ctx, d, other)
}
func (i Integer) Div(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer:
		if o == 0 {
			return nil, nil
		}
		return Integer(int64(i) / int64(o)), nil
	case Long:
		l, _, _ := i.ToLong(true)
		return l.Div(ctx, o)
	}
	return nil, fmt.Errorf("cannot div Integer by %T", other)
}
func (i Integer) Mod(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer:
		if o == 0 {
			return nil, nil
		}
		return Integer(int64(i) % int64(o)), nil
	case Long:
		l, _, _ := i.ToLong(true)
		return l.Mod(ctx, o)
	}
	return nil, fmt.Errorf("cannot mod Integer by %T", other)
}
func (i Integer) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Integer", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (i Integer) MarshalJSON() ([]byte, error) { return json.Marshal(int64(i)) }
func (i Integer) String() string               { return strconv.FormatInt(int64(i), 10) }

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Long is the System.Long primitive (64-bit); addition, subtraction, and
// multiplication report int64 overflow as an error instead of wrapping.
type Long int64

func (l Long) Children(name ...string) Collection { return nil }

func (l Long) ToBoolean(explicit bool) (Boolean, bool, error) {
	if explicit {
		switch l {
		case 0:
			return false, true, nil
		case 1:
			return true, true, nil
		}
	}
	return false, false, implicitConversionError[Long, Boolean](l)
}
func (l Long) ToString(explicit bool) (String, bool, error) {
	return String(strconv.FormatInt(int64(l), 10)), true, nil
}
func (l Long) ToInteger(explicit bool) (Integer, bool, error) {
	if int64(l) < -(1<<31) || int64(l) > (1<<31)-1 {
		if !explicit {
			return 0, false, implicitConversionError[Long, Integer](l)
		}
	}
	return Integer(l), true, nil
}
func (l Long) ToLong(explicit bool) (Long, bool, error) { return l, true, nil }
func (l Long) ToDecimal(explicit bool) (Decimal, bool, error) {
	return Decimal{Value: apd.New(int64(l), 0)}, true, nil
}
func (l Long) ToDate(explicit bool) (Date, bool, error) { return Date{}, false, conversionError[Long, Date]() }
func (l Long) ToTime(explicit bool) (Time, bool, error) { return Time{}, false, conversionError[Long, Time]() }
func (l Long) ToDateTime(explicit bool) (DateTime, bool, error) {
	return DateTime{}, false, conversionError[Long, DateTime]()
}
func (l Long) ToQuantity(explicit bool) (Quantity, bool, error) {
	d, _, _ := l.ToDecimal(true)
	return Quantity{Value: d, Unit: "1"}, true, nil
}
func (l Long) Equal(other Element) (eq bool, ok bool) {
	switch o := other.(type) {
	case Long:
		return l == o, true
	case Integer:
		return l == Long(o), true
	case Decimal:
		return decimalFromInt(int64(l)).Equal(o)
	}
	return false, true
}
func (l Long) Equivalent(other Element) bool {
	eq, ok := l.Equal(other)
	return ok && eq
}
func (l Long) Cmp(other Element) (cmp int, ok bool, err error) {
	switch o := other.(type) {
	case Long:
		return cmpInt64(int64(l), int64(o)), true, nil
	case Integer:
		return cmpInt64(int64(l), int64(o)), true, nil
	case Decimal:
		return decimalFromInt(int64(l)).Cmp(o)
	}
	return 0, false, fmt.Errorf("cannot compare Long to %T", other)
}
func (l Long) Add(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Long:
		return addOverflowInt64(int64(l), int64(o), 64)
	case Integer:
		return addOverflowInt64(int64(l), int64(o), 64)
	case Decimal, Quantity:
		d, _, _ := l.ToDecimal(true)
		return delegateAdd(ctx, d, o)
	}
	return nil, fmt.Errorf("cannot add Long and %T", other)
}
func (l Long) Subtract(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Long, Integer:
		ov, _, _ := elementTo[Long](o, true)
		return subOverflowInt64(int64(l), int64(ov), 64)
	case Decimal, Quantity:
		d, _, _ := l.ToDecimal(true)
		return delegateSubtract(ctx, d, o)
	}
	return nil, fmt.Errorf("cannot subtract %T from Long", other)
}
func (l Long) Multiply(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Long, Integer:
		ov, _, _ := elementTo[Long](o, true)
		return mulOverflowInt64(int64(l), int64(ov), 64)
	case Decimal, Quantity:
		d, _, _ := l.ToDecimal(true)
		return delegateMultiply(ctx, d, o)
	}
	return nil, fmt.Errorf("cannot multiply Long and %T", other)
}
func (l Long) Divide(ctx context.Context, other Element) (Element, error) {
	d, _, _ := l.ToDecimal(true)
	return delegateDivide(ctx, d, other)
}
func (l Long) Div(ctx context.Context, other Element) (Element, error) {
	o, ok, err := elementTo[Long](other, false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot div Long by %T", other)
	}
	if o == 0 {
		return nil, nil
	}
	return Long(int64(l) / int64(o)), nil
}
func (l Long) Mod(ctx context.Context, other Element) (Element, error) {
	o, ok, err := elementTo[Long](other, false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot mod Long by %T", other)
	}
	if o == 0 {
		return nil, nil
	}
	return Long(int64(l) % int64(o)), nil
}
func (l Long) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Long", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (l Long) MarshalJSON() ([]byte, error) { return json.Marshal(int64(l)) }
func (l Long) String() string               { return strconv.FormatInt(int64(l), 10) }

// delegateAdd/Subtract/Multiply/Divide promote the left operand to
// Decimal/Quantity so mixed-type arithmetic (Integer + Quantity, Long *
// Decimal, ...) dispatches through a single implementation.
func delegateAdd(ctx context.Context, left Element, right Element) (Element, error) {
	return dispatchAdd(ctx, left, right)
}
func delegateSubtract(ctx context.Context, left Element, right Element) (Element, error) {
	return dispatchSubtract(ctx, left, right)
}
func delegateMultiply(ctx context.Context, left Element, right Element) (Element, error) {
	return dispatchMultiply(ctx, left, right)
}
func delegateDivide(ctx context.Context, left Element, right Element) (Element, error) {
	return dispatchDivide(ctx, left, right)
}

func dispatchAdd(ctx context.Context, left Element, right Element) (Element, error) {
	if a, ok := left.(addElement); ok {
		return a.Add(ctx, right)
	}
	return nil, fmt.Errorf("%T does not support addition", left)
}
func dispatchSubtract(ctx context.Context, left Element, right Element) (Element, error) {
	if a, ok := left.(subtractElement); ok {
		return a.Subtract(ctx, right)
	}
	return nil, fmt.Errorf("%T does not support subtraction", left)
}
func dispatchMultiply(ctx context.Context, left Element, right Element) (Element, error) {
	if a, ok := left.(multiplyElement); ok {
		return a.Multiply(ctx, right)
	}
	return nil, fmt.Errorf("%T does not support multiplication", left)
}
func dispatchDivide(ctx context.Context, left Element, right Element) (Element, error) {
	if a, ok := left.(divideElement); ok {
		return a.Divide(ctx, right)
	}
	return nil, fmt.Errorf("%T does not support division", left)
}
