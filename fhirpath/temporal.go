package fhirpath

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// TemporalPrecision is the single precision lattice shared by Date, Time,
// and DateTime, per spec.md §3: "TemporalPrecision ∈ { Year, Month, Day,
// Hour, Minute, Second, Millisecond }". The teacher (fhirpath/types.go)
// keeps three separate string-enum precision types (DatePrecision,
// TimePrecision, DateTimePrecision); this engine unifies them into one
// ordered type so Date.Cmp/DateTime.Cmp can share a single
// "coarser common precision" comparison routine, which spec.md §3's
// equality rule requires working the same way across all three kinds.
type TemporalPrecision uint8

const (
	PrecisionYear TemporalPrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionHour
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

func (p TemporalPrecision) dateDigits() int {
	switch p {
	case PrecisionYear:
		return 4
	case PrecisionMonth:
		return 6
	default:
		return 8
	}
}

// Date is the System.Date primitive, precision Year..Day.
type Date struct {
	defaultConversionError[Date]
	Value     time.Time
	Precision TemporalPrecision // Year, Month, or Day
}

func (d Date) Children(name ...string) Collection { return nil }
func (d Date) ToString(explicit bool) (String, bool, error) {
	return String(d.String()), true, nil
}
func (d Date) ToDate(explicit bool) (Date, bool, error) { return d, true, nil }
func (d Date) ToDateTime(explicit bool) (DateTime, bool, error) {
	return DateTime{Value: d.Value, Precision: d.Precision, TzSpecified: false}, true, nil
}
func (d Date) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToDate(false)
	if err == nil && ok {
		cmp, cmpOK, err := d.Cmp(o)
		if err == nil {
			return cmp == 0, cmpOK
		}
	}
	if delegatesToDateTime(other) || isStringish(other) {
		return other.Equal(d)
	}
	return false, true
}
func (d Date) Equivalent(other Element) bool {
	o, ok, err := other.ToDate(false)
	if err == nil && ok {
		if d.Precision != o.Precision {
			return false
		}
		cmp, cmpOK, err := d.Cmp(o)
		return err == nil && cmpOK && cmp == 0
	}
	if delegatesToDateTime(other) || isStringish(other) {
		return other.Equivalent(d)
	}
	return false
}
func (d Date) Cmp(other Element) (cmp int, ok bool, err error) {
	o, ok, err := other.ToDate(false)
	if err != nil || !ok {
		return 0, false, fmt.Errorf("cannot compare Date to %T", other)
	}
	common := d.Precision
	if o.Precision < common {
		common = o.Precision
	}
	return cmpDateFields(d.Value, o.Value, common), true, nil
}

func cmpDateFields(a, b time.Time, level TemporalPrecision) int {
	if c := cmpInts(a.Year(), b.Year()); c != 0 || level == PrecisionYear {
		return c
	}
	if c := cmpInts(int(a.Month()), int(b.Month())); c != 0 || level == PrecisionMonth {
		return c
	}
	return cmpInts(a.Day(), b.Day())
}

func cmpInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// isCalendarUnit distinguishes calendar-length durations (which
// operate on date fields via AddDate) from constant-length ones (which
// operate on the underlying instant), per spec.md §9.
func isCalendarUnit(unit string) bool {
	switch unit {
	case "year", "years", "month", "months", "week", "weeks", "day", "days":
		return true
	}
	return false
}

func (d Date) Add(ctx context.Context, other Element) (Element, error) {
	result, err := addDateFields(d.Value, other, 1)
	if err != nil {
		return nil, err
	}
	return Date{Value: result, Precision: d.Precision}, nil
}
func (d Date) Subtract(ctx context.Context, other Element) (Element, error) {
	result, err := addDateFields(d.Value, other, -1)
	if err != nil {
		return nil, err
	}
	return Date{Value: result, Precision: d.Precision}, nil
}

// addDateFields applies a calendar-unit Quantity to t, clamping to the last
// valid day of the resulting month per spec.md §9's symbolic date-field
// arithmetic (grounded on the teacher's Date.Add).
func addDateFields(t time.Time, other Element, sign int64) (time.Time, error) {
	q, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return time.Time{}, fmt.Errorf("cannot perform date arithmetic with %T", other)
	}
	unit := normalizeCalendarUnit(string(q.Unit))
	if !isCalendarUnit(unit) {
		return time.Time{}, fmt.Errorf("invalid calendar unit for Date arithmetic: %q", q.Unit)
	}
	var integ, frac apd.Decimal
	q.Value.Value.Modf(&integ, &frac)
	n, err := integ.Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("non-integral quantity value for date arithmetic")
	}
	n *= sign
	switch unit {
	case "year":
		result := t.AddDate(int(n), 0, 0)
		if result.Day() < t.Day() {
			result = result.AddDate(0, 0, -result.Day())
		}
		return result, nil
	case "month":
		years, months := n/12, n%12
		result := t.AddDate(int(years), int(months), 0)
		if result.Day() < t.Day() {
			result = result.AddDate(0, 0, -result.Day())
		}
		return result, nil
	case "week":
		return t.AddDate(0, 0, int(n)*7), nil
	case "day":
		return t.AddDate(0, 0, int(n)), nil
	}
	return time.Time{}, fmt.Errorf("invalid calendar unit %q", q.Unit)
}

func (d Date) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Date", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return d.Value.Format("2006")
	case PrecisionMonth:
		return d.Value.Format("2006-01")
	default:
		return d.Value.Format("2006-01-02")
	}
}

// LowBoundary/HighBoundary substitute unspecified fields with their minimum
// or maximum valid value at the target precision (spec.md §4.6). A nil
// target reveals fields up to the value's own precision, matching
// lowBoundary()/highBoundary() called with no argument; an explicit target
// narrower than the value's own precision re-collapses the fields between
// the two back to their boundary value, and a target wider than the
// value's own precision leaves those extra fields at their boundary value
// too, since the value never carried that information. Grounded on
// compute_date_boundary in original_source's boundary_utils.rs.
func (d Date) LowBoundary(target *TemporalPrecision) Date {
	return computeDateBoundary(d, target, false)
}
func (d Date) HighBoundary(target *TemporalPrecision) Date {
	return computeDateBoundary(d, target, true)
}

func computeDateBoundary(d Date, target *TemporalPrecision, high bool) Date {
	reveal := d.Precision
	result := d.Precision
	if target != nil {
		result = *target
		if *target < reveal {
			reveal = *target
		}
	}
	year := d.Value.Year()
	month := d.Value.Month()
	if reveal < PrecisionMonth {
		month = boundaryMonth(high)
	}
	day := d.Value.Day()
	if reveal < PrecisionDay {
		day = boundaryDay(year, month, high)
	}
	return Date{Value: time.Date(year, month, day, 0, 0, 0, 0, d.Value.Location()), Precision: result}
}

func boundaryMonth(high bool) time.Month {
	if high {
		return time.December
	}
	return time.January
}

func boundaryDay(year int, month time.Month, high bool) int {
	if !high {
		return 1
	}
	return daysInMonth(year, month)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func boundaryHour(high bool) int {
	if high {
		return 23
	}
	return 0
}
func boundaryMinute(high bool) int {
	if high {
		return 59
	}
	return 0
}
func boundarySecond(high bool) int {
	if high {
		return 59
	}
	return 0
}
func boundaryMillisecond(high bool) int {
	if high {
		return 999
	}
	return 0
}

// precisionFromDateDigits maps the digit-count precision argument accepted
// by lowBoundary/highBoundary onto Date's Year/Month/Day lattice.
func precisionFromDateDigits(digits int) (TemporalPrecision, bool) {
	switch digits {
	case 4:
		return PrecisionYear, true
	case 6:
		return PrecisionMonth, true
	case 8:
		return PrecisionDay, true
	}
	return 0, false
}

// precisionFromDateTimeDigits maps the digit-count precision argument onto
// DateTime's full Year..Millisecond lattice.
func precisionFromDateTimeDigits(digits int) (TemporalPrecision, bool) {
	switch digits {
	case 4:
		return PrecisionYear, true
	case 6:
		return PrecisionMonth, true
	case 8:
		return PrecisionDay, true
	case 10:
		return PrecisionHour, true
	case 12:
		return PrecisionMinute, true
	case 14:
		return PrecisionSecond, true
	case 17:
		return PrecisionMillisecond, true
	}
	return 0, false
}

// precisionFromTimeDigits maps the digit-count precision argument onto
// Time's Hour..Millisecond lattice.
func precisionFromTimeDigits(digits int) (TemporalPrecision, bool) {
	switch digits {
	case 2:
		return PrecisionHour, true
	case 4:
		return PrecisionMinute, true
	case 6:
		return PrecisionSecond, true
	case 9:
		return PrecisionMillisecond, true
	}
	return 0, false
}

// Time is the System.Time primitive, precision Hour..Millisecond, anchored
// to a fixed zero date so time.Time arithmetic (and constant-length
// duration addition) can reuse the standard library.
type Time struct {
	defaultConversionError[Time]
	Value     time.Time // year/month/day are always the zero anchor
	Precision TemporalPrecision // Hour, Minute, Second, or Millisecond
}

const timeAnchorYear, timeAnchorMonth, timeAnchorDay = 1, 1, 1

func (t Time) Children(name ...string) Collection { return nil }
func (t Time) ToString(explicit bool) (String, bool, error) {
	return String(t.String()), true, nil
}
func (t Time) ToTime(explicit bool) (Time, bool, error) { return t, true, nil }
func (t Time) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToTime(false)
	if err == nil && ok {
		cmp, cmpOK, err := t.Cmp(o)
		if err == nil {
			return cmp == 0, cmpOK
		}
	}
	if isStringish(other) {
		return other.Equal(t)
	}
	return false, true
}
func (t Time) Equivalent(other Element) bool {
	o, ok, err := other.ToTime(false)
	if err == nil && ok {
		if t.Precision != o.Precision {
			return false
		}
		cmp, cmpOK, err := t.Cmp(o)
		return err == nil && cmpOK && cmp == 0
	}
	if isStringish(other) {
		return other.Equivalent(t)
	}
	return false
}
func (t Time) Cmp(other Element) (cmp int, ok bool, err error) {
	o, ok, err := other.ToTime(false)
	if err != nil || !ok {
		return 0, false, fmt.Errorf("cannot compare Time to %T", other)
	}
	common := t.Precision
	if o.Precision < common {
		common = o.Precision
	}
	return cmpTimeFields(t.Value, o.Value, common), true, nil
}

func cmpTimeFields(a, b time.Time, level TemporalPrecision) int {
	if c := cmpInts(a.Hour(), b.Hour()); c != 0 || level == PrecisionHour {
		return c
	}
	if c := cmpInts(a.Minute(), b.Minute()); c != 0 || level == PrecisionMinute {
		return c
	}
	if c := cmpInts(a.Second(), b.Second()); c != 0 || level == PrecisionSecond {
		return c
	}
	return cmpInts(a.Nanosecond()/1e6, b.Nanosecond()/1e6)
}

func (t Time) Add(ctx context.Context, other Element) (Element, error) {
	result, err := addConstantDuration(t.Value, other, 1)
	if err != nil {
		return nil, err
	}
	return Time{Value: wrapTimeOfDay(result), Precision: t.Precision}, nil
}
func (t Time) Subtract(ctx context.Context, other Element) (Element, error) {
	result, err := addConstantDuration(t.Value, other, -1)
	if err != nil {
		return nil, err
	}
	return Time{Value: wrapTimeOfDay(result), Precision: t.Precision}, nil
}

// wrapTimeOfDay keeps Time arithmetic inside a single day, per spec.md §8
// scenario 5: `@T23:00:00 + 2 hours` wraps to `01:00:00` rather than
// spilling into a different calendar day.
func wrapTimeOfDay(t time.Time) time.Time {
	h, m, s := t.Clock()
	ns := t.Nanosecond()
	return time.Date(timeAnchorYear, timeAnchorMonth, timeAnchorDay, h, m, s, ns, t.Location())
}

// addConstantDuration applies a UCUM constant-length time unit (s, min, h,
// ms) to t via time.Duration arithmetic, per spec.md §9.
func addConstantDuration(t time.Time, other Element, sign int64) (time.Time, error) {
	q, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return time.Time{}, fmt.Errorf("cannot perform time arithmetic with %T", other)
	}
	unit := normalizeCalendarUnit(string(q.Unit))
	dur, err := decimalToDuration(q.Value, unit)
	if err != nil {
		return time.Time{}, err
	}
	if sign < 0 {
		dur = -dur
	}
	return t.Add(dur), nil
}

func decimalToDuration(v Decimal, unit string) (time.Duration, error) {
	f, err := v.Value.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid quantity value for time arithmetic: %w", err)
	}
	switch unit {
	case "hour":
		return time.Duration(f * float64(time.Hour)), nil
	case "minute":
		return time.Duration(f * float64(time.Minute)), nil
	case "second":
		return time.Duration(f * float64(time.Second)), nil
	case "millisecond":
		return time.Duration(f * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("invalid time unit %q", unit)
}

func (t Time) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Time", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (t Time) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }
func (t Time) String() string {
	switch t.Precision {
	case PrecisionHour:
		return t.Value.Format("15")
	case PrecisionMinute:
		return t.Value.Format("15:04")
	case PrecisionSecond:
		return t.Value.Format("15:04:05")
	default:
		return t.Value.Format("15:04:05.000")
	}
}

// LowBoundary/HighBoundary substitute unspecified fields with their minimum
// or maximum valid value at the target precision (spec.md §4.6); see
// Date.LowBoundary for the target-vs-own-precision reveal rule.
func (t Time) LowBoundary(target *TemporalPrecision) Time {
	return computeTimeBoundary(t, target, false)
}
func (t Time) HighBoundary(target *TemporalPrecision) Time {
	return computeTimeBoundary(t, target, true)
}

func computeTimeBoundary(t Time, target *TemporalPrecision, high bool) Time {
	reveal := t.Precision
	if target != nil && *target < reveal {
		reveal = *target
	}
	hour := t.Value.Hour()
	if reveal < PrecisionHour {
		hour = boundaryHour(high)
	}
	minute := t.Value.Minute()
	if reveal < PrecisionMinute {
		minute = boundaryMinute(high)
	}
	second := t.Value.Second()
	if reveal < PrecisionSecond {
		second = boundarySecond(high)
	}
	ms := t.Value.Nanosecond() / 1e6
	if reveal < PrecisionMillisecond {
		ms = boundaryMillisecond(high)
	}
	return Time{
		Value:     time.Date(timeAnchorYear, timeAnchorMonth, timeAnchorDay, hour, minute, second, ms*1e6, t.Value.Location()),
		Precision: PrecisionMillisecond,
	}
}

// DateTime is the System.DateTime primitive, precision Year..Millisecond,
// with an explicit tz_specified flag (spec.md §3) distinguishing "no
// offset given" from "UTC explicitly".
type DateTime struct {
	defaultConversionError[DateTime]
	Value       time.Time
	Precision   TemporalPrecision
	TzSpecified bool
}

func (dt DateTime) Children(name ...string) Collection { return nil }
func (dt DateTime) ToString(explicit bool) (String, bool, error) {
	return String(dt.String()), true, nil
}
func (dt DateTime) ToDate(explicit bool) (Date, bool, error) {
	p := dt.Precision
	if p > PrecisionDay {
		p = PrecisionDay
	}
	return Date{Value: dt.Value, Precision: p}, true, nil
}
func (dt DateTime) ToDateTime(explicit bool) (DateTime, bool, error) { return dt, true, nil }
func (dt DateTime) ToTime(explicit bool) (Time, bool, error) {
	if dt.Precision < PrecisionHour {
		return Time{}, false, nil
	}
	return Time{Value: wrapTimeOfDay(dt.Value), Precision: dt.Precision}, true, nil
}
func (dt DateTime) Equal(other Element) (eq bool, ok bool) {
	o, ok, err := other.ToDateTime(false)
	if err == nil && ok {
		cmp, cmpOK, err := dt.Cmp(o)
		if err == nil {
			return cmp == 0, cmpOK
		}
	}
	if isStringish(other) {
		return other.Equal(dt)
	}
	return false, true
}
func (dt DateTime) Equivalent(other Element) bool {
	o, ok, err := other.ToDateTime(false)
	if err == nil && ok {
		if dt.Precision != o.Precision {
			return false
		}
		cmp, cmpOK, err := dt.Cmp(o)
		return err == nil && cmpOK && cmp == 0
	}
	if isStringish(other) {
		return other.Equivalent(dt)
	}
	return false
}
func (dt DateTime) Cmp(other Element) (cmp int, ok bool, err error) {
	o, ok, err := other.ToDateTime(false)
	if err != nil || !ok {
		return 0, false, fmt.Errorf("cannot compare DateTime to %T", other)
	}
	common := dt.Precision
	if o.Precision < common {
		common = o.Precision
	}
	right := o.Value.In(dt.Value.Location())
	if c := cmpDateFields(dt.Value, right, min(common, PrecisionDay)); c != 0 {
		return c, true, nil
	}
	if common <= PrecisionDay {
		return 0, true, nil
	}
	return cmpTimeFields(dt.Value, right, common), true, nil
}

func (dt DateTime) Add(ctx context.Context, other Element) (Element, error) {
	q, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot perform datetime arithmetic with %T", other)
	}
	unit := normalizeCalendarUnit(string(q.Unit))
	if isCalendarUnit(unit) {
		result, err := addDateFields(dt.Value, other, 1)
		if err != nil {
			return nil, err
		}
		return DateTime{Value: result, Precision: dt.Precision, TzSpecified: dt.TzSpecified}, nil
	}
	dur, err := decimalToDuration(q.Value, unit)
	if err != nil {
		return nil, err
	}
	return DateTime{Value: dt.Value.Add(dur), Precision: dt.Precision, TzSpecified: dt.TzSpecified}, nil
}
func (dt DateTime) Subtract(ctx context.Context, other Element) (Element, error) {
	q, ok, err := other.ToQuantity(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("cannot perform datetime arithmetic with %T", other)
	}
	unit := normalizeCalendarUnit(string(q.Unit))
	if isCalendarUnit(unit) {
		result, err := addDateFields(dt.Value, other, -1)
		if err != nil {
			return nil, err
		}
		return DateTime{Value: result, Precision: dt.Precision, TzSpecified: dt.TzSpecified}, nil
	}
	dur, err := decimalToDuration(q.Value, unit)
	if err != nil {
		return nil, err
	}
	return DateTime{Value: dt.Value.Add(-dur), Precision: dt.Precision, TzSpecified: dt.TzSpecified}, nil
}

func (dt DateTime) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "DateTime", BaseType: TypeSpecifier{Namespace: "System", Name: "Any"}}
}
func (dt DateTime) MarshalJSON() ([]byte, error) { return json.Marshal(dt.String()) }
func (dt DateTime) String() string {
	layout := map[TemporalPrecision]string{
		PrecisionYear:        "2006",
		PrecisionMonth:       "2006-01",
		PrecisionDay:         "2006-01-02",
		PrecisionHour:        "2006-01-02T15",
		PrecisionMinute:      "2006-01-02T15:04",
		PrecisionSecond:      "2006-01-02T15:04:05",
		PrecisionMillisecond: "2006-01-02T15:04:05.000",
	}[dt.Precision]
	s := dt.Value.Format(layout)
	if dt.Precision >= PrecisionHour && dt.TzSpecified {
		s += dt.Value.Format("Z07:00")
	}
	return s
}

// LowBoundary/HighBoundary substitute unspecified fields with their minimum
// or maximum valid value at the target precision (spec.md §4.6); see
// Date.LowBoundary for the target-vs-own-precision reveal rule.
func (dt DateTime) LowBoundary(target *TemporalPrecision) DateTime {
	return computeDateTimeBoundary(dt, target, false)
}
func (dt DateTime) HighBoundary(target *TemporalPrecision) DateTime {
	return computeDateTimeBoundary(dt, target, true)
}

func computeDateTimeBoundary(dt DateTime, target *TemporalPrecision, high bool) DateTime {
	reveal := dt.Precision
	if target != nil && *target < reveal {
		reveal = *target
	}
	year := dt.Value.Year()
	month := dt.Value.Month()
	if reveal < PrecisionMonth {
		month = boundaryMonth(high)
	}
	day := dt.Value.Day()
	if reveal < PrecisionDay {
		day = boundaryDay(year, month, high)
	}
	hour := dt.Value.Hour()
	if reveal < PrecisionHour {
		hour = boundaryHour(high)
	}
	minute := dt.Value.Minute()
	if reveal < PrecisionMinute {
		minute = boundaryMinute(high)
	}
	second := dt.Value.Second()
	if reveal < PrecisionSecond {
		second = boundarySecond(high)
	}
	ms := dt.Value.Nanosecond() / 1e6
	if reveal < PrecisionMillisecond {
		ms = boundaryMillisecond(high)
	}
	return DateTime{
		Value:       time.Date(year, month, day, hour, minute, second, ms*1e6, dt.Value.Location()),
		Precision:   PrecisionMillisecond,
		TzSpecified: dt.TzSpecified,
	}
}

// normalizeCalendarUnit maps both the plural English calendar words and
// UCUM abbreviations to a single canonical token, merging spec.md §3's
// calendar-token list with UCUM time abbreviations (ms, s, min, h, d, wk,
// mo, a).
func normalizeCalendarUnit(u string) string {
	u = strings.Trim(u, "'")
	switch u {
	case "year", "years", "a":
		return "year"
	case "month", "months", "mo":
		return "month"
	case "week", "weeks", "wk":
		return "week"
	case "day", "days", "d":
		return "day"
	case "hour", "hours", "h":
		return "hour"
	case "minute", "minutes", "min":
		return "minute"
	case "second", "seconds", "s":
		return "second"
	case "millisecond", "milliseconds", "ms":
		return "millisecond"
	}
	return u
}

// ParseDate parses a FHIRPath date literal body (with or without the
// leading '@'), e.g. "2020", "2020-01", "2020-01-15".
func ParseDate(s string) (Date, error) {
	s = strings.TrimPrefix(s, "@")
	switch len(s) {
	case 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return Date{}, err
		}
		return Date{Value: t, Precision: PrecisionYear}, nil
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return Date{}, err
		}
		return Date{Value: t, Precision: PrecisionMonth}, nil
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return Date{}, err
		}
		return Date{Value: t, Precision: PrecisionDay}, nil
	}
	return Date{}, fmt.Errorf("invalid date literal %q", s)
}

// ParseTime parses a FHIRPath time literal body (with or without the
// leading "@T"), e.g. "10", "10:00", "10:00:00", "10:00:00.000".
func ParseTime(s string) (Time, error) {
	s = strings.TrimPrefix(s, "@T")
	s = strings.TrimPrefix(s, "T")
	anchor := fmt.Sprintf("%04d-%02d-%02d ", timeAnchorYear, timeAnchorMonth, timeAnchorDay)
	switch {
	case len(s) == 2:
		t, err := time.Parse("2006-01-02 15", anchor+s)
		if err != nil {
			return Time{}, err
		}
		return Time{Value: t, Precision: PrecisionHour}, nil
	case len(s) == 5:
		t, err := time.Parse("2006-01-02 15:04", anchor+s)
		if err != nil {
			return Time{}, err
		}
		return Time{Value: t, Precision: PrecisionMinute}, nil
	case len(s) == 8:
		t, err := time.Parse("2006-01-02 15:04:05", anchor+s)
		if err != nil {
			return Time{}, err
		}
		return Time{Value: t, Precision: PrecisionSecond}, nil
	case len(s) > 8 && s[8] == '.':
		t, err := time.Parse("2006-01-02 15:04:05.000", anchor+s)
		if err != nil {
			return Time{}, err
		}
		return Time{Value: t, Precision: PrecisionMillisecond}, nil
	}
	return Time{}, fmt.Errorf("invalid time literal %q", s)
}

// ParseDateTime parses a FHIRPath datetime literal body (with or without
// the leading '@'), including an optional trailing 'Z' or "+hh:mm"/"-hh:mm"
// timezone offset.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimPrefix(s, "@")
	datePart, timePart, hasTime := strings.Cut(s, "T")
	date, err := ParseDate(datePart)
	if err != nil {
		return DateTime{}, err
	}
	if !hasTime || timePart == "" {
		return DateTime{Value: date.Value, Precision: date.Precision}, nil
	}

	tzSpecified := false
	offset := ""
	body := timePart
	if strings.HasSuffix(body, "Z") {
		tzSpecified = true
		body = strings.TrimSuffix(body, "Z")
		offset = "Z"
	} else if idx := tzOffsetIndex(body); idx >= 0 {
		tzSpecified = true
		offset = body[idx:]
		body = body[:idx]
	}

	tm, err := ParseTime(body)
	if err != nil {
		return DateTime{}, err
	}

	loc := time.UTC
	if offset != "" && offset != "Z" {
		loc, err = parseOffsetLocation(offset)
		if err != nil {
			return DateTime{}, err
		}
	}
	combined := time.Date(date.Value.Year(), date.Value.Month(), date.Value.Day(),
		tm.Value.Hour(), tm.Value.Minute(), tm.Value.Second(), tm.Value.Nanosecond(), loc)
	return DateTime{Value: combined, Precision: tm.Precision, TzSpecified: tzSpecified}, nil
}

func tzOffsetIndex(s string) int {
	for i := 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			return i
		}
	}
	return -1
}

func parseOffsetLocation(offset string) (*time.Location, error) {
	sign := 1
	if strings.HasPrefix(offset, "-") {
		sign = -1
	}
	offset = strings.TrimPrefix(strings.TrimPrefix(offset, "+"), "-")
	parts := strings.SplitN(offset, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid timezone offset %q", offset)
	}
	minutes := 0
	if len(parts) == 2 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid timezone offset %q", offset)
		}
	}
	secs := sign * (hours*3600 + minutes*60)
	return time.FixedZone(offset, secs), nil
}
