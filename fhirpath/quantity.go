package fhirpath

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Quantity is the System.Quantity primitive: a Decimal value plus an
// optional UCUM unit string (spec.md §3). Calendar tokens (year, month,
// week, day, hour, minute, second, millisecond) are treated as a
// first-class dimension outside UCUM's own table, per spec.md §3 and §9.
//
// Dimension compatibility is checked against unitDimensionTable, an internal
// table grounded on the canonical-unit groupings in
// robertoAraneda-gofhir's pkg/ucum (_examples/robertoAraneda-gofhir/pkg/ucum/ucum.go):
// each group there (mass, length, volume, time, ...) becomes one dimension
// vector entry here. See DESIGN.md for why the iimos/ucum module named in
// the teacher's go.mod is not imported directly.
type Quantity struct {
	defaultConversionError[Quantity]
	Value Decimal
	Unit  String
}

// unitDimension identifies one physical dimension (mass, length, time, ...)
// and the factor that converts a unit's value into that dimension's base
// unit.
type unitDimension struct {
	dimension string
	toBase    float64 // multiply a value in this unit by toBase to reach the base unit
}

var unitDimensionTable = map[string]unitDimension{
	// mass, base: g
	"kg": {"mass", 1000}, "g": {"mass", 1}, "mg": {"mass", 0.001}, "ug": {"mass", 1e-6}, "ng": {"mass", 1e-9},
	"[lb_av]": {"mass", 453.59237}, "[oz_av]": {"mass", 28.349523125},
	// length, base: m
	"km": {"length", 1000}, "m": {"length", 1}, "dm": {"length", 0.1}, "cm": {"length", 0.01}, "mm": {"length", 0.001},
	"[in_i]": {"length", 0.0254}, "[ft_i]": {"length", 0.3048}, "[mi_i]": {"length", 1609.344},
	// volume, base: L
	"L": {"volume", 1}, "l": {"volume", 1}, "dL": {"volume", 0.1}, "mL": {"volume", 0.001}, "uL": {"volume", 1e-6},
	// pressure, base: Pa
	"Pa": {"pressure", 1}, "kPa": {"pressure", 1000}, "mm[Hg]": {"pressure", 133.322387415},
	// temperature, base: K
	"K": {"temperature", 1}, "Cel": {"temperature", 1}, "[degF]": {"temperature", 1},
	// dimensionless
	"1": {"dimensionless", 1}, "%": {"dimensionless", 0.01},
	// UCUM constant-length time units (calendar-category is handled separately)
	"s": {"time", 1}, "min": {"time", 60}, "h": {"time", 3600}, "d": {"time", 86400}, "ms": {"time", 0.001},
	"wk": {"time", 604800}, "mo": {"time", 2629800}, "a": {"time", 31557600},
}

// calendarDimensionTable mirrors spec.md §3's requirement to treat
// calendar tokens as a parallel first-class dimension, independent of the
// UCUM time abbreviations above (a "year" Quantity and an "a" Quantity are
// both dimension "time" but use calendar vs constant-length arithmetic
// when added to a temporal, per spec.md §9 — the dimension table above
// covers the quantity-to-quantity compatibility check here).
var calendarDimensionTable = map[string]unitDimension{
	"year": {"time", 31557600}, "month": {"time", 2629800}, "week": {"time", 604800},
	"day": {"time", 86400}, "hour": {"time", 3600}, "minute": {"time", 60},
	"second": {"time", 1}, "millisecond": {"time", 0.001},
}

func resolveUnitDimension(unit string) (unitDimension, bool) {
	unit = strings.Trim(unit, "'")
	if d, ok := unitDimensionTable[unit]; ok {
		return d, true
	}
	if norm := normalizeCalendarUnit(unit); norm != unit {
		if d, ok := calendarDimensionTable[norm]; ok {
			return d, true
		}
	}
	if d, ok := calendarDimensionTable[unit]; ok {
		return d, true
	}
	return unitDimension{}, false
}

// dimensionallyCompatible reports whether two unit strings reduce to the
// same dimension vector, per spec.md §3.
func dimensionallyCompatible(a, b string) (unitDimension, unitDimension, bool) {
	da, aok := resolveUnitDimension(a)
	db, bok := resolveUnitDimension(b)
	if !aok || !bok {
		return da, db, a == b // unrecognized units are only compatible if identical text
	}
	return da, db, da.dimension == db.dimension
}

func (q Quantity) Children(name ...string) Collection { return nil }
func (q Quantity) ToString(explicit bool) (String, bool, error) {
	return String(q.String()), true, nil
}
func (q Quantity) ToQuantity(explicit bool) (Quantity, bool, error) { return q, true, nil }
func (q Quantity) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		if canDelegateNumeric(other) {
			return other.Equal(q)
		}
		return false, true
	}
	cmp, cmpOK, err := q.Cmp(o)
	if err != nil {
		return false, true
	}
	return cmp == 0, cmpOK
}
func (q Quantity) Equivalent(other Element) bool {
	eq, ok := q.Equal(other)
	return ok && eq
}
func (q Quantity) Cmp(other Element) (cmp int, ok bool, err error) {
	o, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return 0, false, fmt.Errorf("cannot compare Quantity to %T", other)
	}
	_, _, compatible := dimensionallyCompatible(string(q.Unit), string(o.Unit))
	if !compatible {
		return 0, false, nil
	}
	lv, rv, err := canonicalPair(q, o)
	if err != nil {
		return 0, false, err
	}
	return lv.Cmp(rv.Value), true, nil
}

// canonicalPair converts b's value into a's unit (a is returned unchanged)
// so they can be compared/added directly via apd.Decimal arithmetic.
func canonicalPair(a, b Quantity) (Decimal, Quantity, error) {
	da, aok := resolveUnitDimension(string(a.Unit))
	db, bok := resolveUnitDimension(string(b.Unit))
	if !aok || !bok || da.dimension != db.dimension {
		return a.Value, b, nil // identical unit text, no conversion needed
	}
	ratio := db.toBase / da.toBase
	factor, _, err := apd.NewFromString(fmt.Sprintf("%v", ratio))
	if err != nil {
		return Decimal{}, Quantity{}, err
	}
	var converted apd.Decimal
	if _, err := defaultAPDContext.Mul(&converted, b.Value.Value, factor); err != nil {
		return Decimal{}, Quantity{}, err
	}
	return a.Value, Quantity{Value: Decimal{Value: &converted}, Unit: a.Unit}, nil
}

func (q Quantity) Add(ctx context.Context, other Element) (Element, error) {
	o, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot add Quantity and %T", other)
	}
	_, _, compatible := dimensionallyCompatible(string(q.Unit), string(o.Unit))
	if !compatible {
		return nil, fmt.Errorf("incompatible units for addition: %q and %q", q.Unit, o.Unit)
	}
	_, converted, err := canonicalPair(q, o)
	if err != nil {
		return nil, err
	}
	var res apd.Decimal
	if _, err := apdContext(ctx).Add(&res, q.Value.Value, converted.Value.Value); err != nil {
		return nil, err
	}
	return Quantity{Value: Decimal{Value: &res}, Unit: q.Unit}, nil
}
func (q Quantity) Subtract(ctx context.Context, other Element) (Element, error) {
	o, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot subtract %T from Quantity", other)
	}
	_, _, compatible := dimensionallyCompatible(string(q.Unit), string(o.Unit))
	if !compatible {
		return nil, fmt.Errorf("incompatible units for subtraction: %q and %q", q.Unit, o.Unit)
	}
	_, converted, err := canonicalPair(q, o)
	if err != nil {
		return nil, err
	}
	var res apd.Decimal
	if _, err := apdContext(ctx).Sub(&res, q.Value.Value, converted.Value.Value); err != nil {
		return nil, err
	}
	return Quantity{Value: Decimal{Value: &res}, Unit: q.Unit}, nil
}

// Multiply/Divide produce derived units (spec.md §3): "unit1.unit2" and
// "unit1/unit2" respectively, left verbatim rather than algebraically
// simplified (matching FHIRPath's own lack of a full unit-algebra system);
// the one exception is dividing two identical units, which yields "1".
func (q Quantity) Multiply(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer, Long, Decimal:
		d, _, _ := elementTo[Decimal](o, true)
		var res apd.Decimal
		if _, err := apdContext(ctx).Mul(&res, q.Value.Value, d.Value); err != nil {
			return nil, err
		}
		return Quantity{Value: Decimal{Value: &res}, Unit: q.Unit}, nil
	case Quantity:
		var res apd.Decimal
		if _, err := apdContext(ctx).Mul(&res, q.Value.Value, o.Value.Value); err != nil {
			return nil, err
		}
		return Quantity{Value: Decimal{Value: &res}, Unit: String(string(q.Unit) + "." + string(o.Unit))}, nil
	}
	return nil, fmt.Errorf("cannot multiply Quantity and %T", other)
}
func (q Quantity) Divide(ctx context.Context, other Element) (Element, error) {
	switch o := other.(type) {
	case Integer, Long, Decimal:
		d, _, _ := elementTo[Decimal](o, true)
		if d.Value.IsZero() {
			return nil, nil
		}
		var res apd.Decimal
		if _, err := apdContext(ctx).Quo(&res, q.Value.Value, d.Value); err != nil {
			return nil, err
		}
		return Quantity{Value: Decimal{Value: &res}, Unit: q.Unit}, nil
	case Quantity:
		if o.Value.Value.IsZero() {
			return nil, nil
		}
		var res apd.Decimal
		if _, err := apdContext(ctx).Quo(&res, q.Value.Value, o.Value.Value); err != nil {
			return nil, err
		}
		unit := string(q.Unit)
		if q.Unit == o.Unit {
			unit = "1"
		} else {
			unit = unit + "/" + string(o.Unit)
		}
		return Quantity{Value: Decimal{Value: &res}, Unit: String(unit)}, nil
	}
	return nil, fmt.Errorf("cannot divide Quantity by %T", other)
}

func (q Quantity) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Quantity", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (q Quantity) MarshalJSON() ([]byte, error) {
	type alias struct {
		Value Decimal `json:"value"`
		Unit  String  `json:"unit"`
	}
	return json.Marshal(alias{q.Value, q.Unit})
}
func (q Quantity) String() string {
	if q.Unit == "" || q.Unit == "1" {
		return q.Value.String()
	}
	return fmt.Sprintf("%s '%s'", q.Value.String(), q.Unit)
}

// ParseQuantity parses a FHIRPath quantity literal body, e.g. "4 'mg'" or
// "7 days", already split from its preceding number token by the lexer's
// grammar (the lexer does not emit a single quantity token; the parser
// assembles LiteralQuantity nodes from an integer/decimal term followed by
// a string or calendar-keyword term. ParseQuantity is also used by
// toQuantity()'s String-to-Quantity conversion, which does receive the
// whole "4 mg" text as one string).
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, " ", 2)
	val, _, err := apd.NewFromString(parts[0])
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity value %q", parts[0])
	}
	unit := "1"
	if len(parts) == 2 {
		unit = strings.Trim(strings.TrimSpace(parts[1]), "'")
	}
	return Quantity{Value: Decimal{Value: val}, Unit: String(unit)}, nil
}
