package utm

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

// CivilDate is a zone-less calendar date (UniversalType Date).
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// CivilTime is a zone-less time of day (UniversalType Time).
type CivilTime struct {
	Hour, Minute, Second, Nanos int
}

func (t CivilTime) String() string {
	if t.Nanos == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanos)
}

// DecimalLiteral carries the textual representation of a Decimal value.
// Precision/scale live on the paired Type; the core transfer path never
// widens this to a binary float (spec invariant (b)).
type DecimalLiteral struct {
	Text string
}

// GeometryValue is a GeoJSON-shaped document plus an SRID (spec invariant (c)).
type GeometryValue struct {
	Type        GeometryType
	Coordinates []float64   // for Point
	Rings       [][]float64 // flattened coordinate pairs for LineString/Polygon rings, one entry per ring
	SRID        int
}

// Thing is the sole record-identity bearer: a table-qualified id whose own
// id is a scalar for a single-column key or, for composite keys, an
// Object value keyed by primary-key column name.
type Thing struct {
	Table string
	ID    Value
}

// String renders "<table>:<id>"; Array ids render element by element and
// Object ids key by key in sorted key order, so equal ids render equally.
func (t Thing) String() string {
	return fmt.Sprintf("%s:%s", t.Table, renderID(t.ID))
}

func renderID(v Value) string {
	if v.IsObject() {
		keys := make([]string, 0, len(v.object))
		for k := range v.object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := "{"
		for i, k := range keys {
			if i > 0 {
				parts += ","
			}
			parts += k + "=" + renderID(v.object[k])
		}
		return parts + "}"
	}
	if v.IsArray() {
		parts := "["
		for i, e := range v.array {
			if i > 0 {
				parts += ","
			}
			parts += renderID(e)
		}
		return parts + "]"
	}
	switch v.kind {
	case KindText, KindVarChar, KindChar, KindUuid, KindUlid:
		s, _ := v.AsString()
		return s
	case KindInt64, KindInt32, KindInt16, KindInt8:
		n, _ := v.AsInt()
		return fmt.Sprintf("%d", n)
	default:
		return fmt.Sprintf("%v", v.payload)
	}
}

// Value is the tagged UniversalValue payload. A zero Value is Null.
type Value struct {
	kind    Kind
	isNull  bool
	payload any

	// array and object get their own fields rather than living in
	// payload so accessors don't need a type assertion on a slice of
	// interfaces every time.
	array  []Value
	object map[string]Value
	thing  *Thing
}

// Null constructs the Null value. The declared type lives alongside it in
// a TypedValue, never inside Value itself.
func Null() Value { return Value{isNull: true} }

func (v Value) IsNull() bool   { return v.isNull }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsArray() bool  { return v.kind == KindArray && !v.isNull }
func (v Value) IsObject() bool { return v.kind == KindObject && !v.isNull }

func BoolValue(b bool) Value { return Value{kind: KindBool, payload: b} }

// IntValue constructs an integer-kinded value. kind must be one of the
// Int8/16/32/64 kinds; width is carried by the paired Type.
func IntValue(kind Kind, n int64) Value { return Value{kind: kind, payload: n} }

func Float32Value(f float32) Value { return Value{kind: KindFloat32, payload: f} }
func Float64Value(f float64) Value { return Value{kind: KindFloat64, payload: f} }

func DecimalValue(literal string) Value {
	return Value{kind: KindDecimal, payload: DecimalLiteral{Text: literal}}
}

func StringValue(kind Kind, s string) Value { return Value{kind: kind, payload: s} }

func TextValue(s string) Value    { return StringValue(KindText, s) }
func CharValue(s string) Value    { return StringValue(KindChar, s) }
func VarCharValue(s string) Value { return StringValue(KindVarChar, s) }
func EnumValue(label string) Value { return StringValue(KindEnum, label) }

func BytesValue(kind Kind, b []byte) Value { return Value{kind: kind, payload: append([]byte(nil), b...)} }
func BlobValue(b []byte) Value             { return BytesValue(KindBlob, b) }
func RawBytesValue(b []byte) Value         { return BytesValue(KindBytes, b) }

func UuidValue(id uuid.UUID) Value { return Value{kind: KindUuid, payload: id} }
func UlidValue(id ulid.ULID) Value { return Value{kind: KindUlid, payload: id} }

func DateValue(d CivilDate) Value { return Value{kind: KindDate, payload: d} }
func TimeValue(t CivilTime) Value { return Value{kind: KindTime, payload: t} }

// LocalDateTimeValue carries a wall-clock time.Time with no meaningful
// zone, conventionally stored as UTC.
func LocalDateTimeValue(kind Kind, t time.Time) Value {
	return Value{kind: kind, payload: t}
}

// ZonedDateTimeValue carries a time.Time with its original offset/zone
// preserved.
func ZonedDateTimeValue(t time.Time) Value { return Value{kind: KindZonedDateTime, payload: t} }

func DurationValue(d time.Duration) Value { return Value{kind: KindDuration, payload: d} }

func JSONValue(kind Kind, doc any) Value { return Value{kind: kind, payload: doc} }

func ArrayValue(elements []Value) Value {
	return Value{kind: KindArray, array: elements}
}

// SetValue carries the literal elements of a MySQL SET column, including
// the documented one-element-empty-string case for an empty SET string.
func SetValue(elements []string) Value {
	return Value{kind: KindSet, payload: append([]string(nil), elements...)}
}

func GeometryValueOf(g GeometryValue) Value { return Value{kind: KindGeometry, payload: g} }

func ThingValue(t Thing) Value { return Value{kind: KindThing, thing: &t} }

func ObjectValue(fields map[string]Value) Value {
	return Value{kind: KindObject, object: fields}
}

// Accessors. Each returns ok=false if the value is Null or not of the
// requested shape, rather than panicking — conversions run against
// caller-supplied data and must fail soft.

func (v Value) AsBool() (bool, bool) {
	b, ok := v.payload.(bool)
	return b, ok && !v.isNull
}

func (v Value) AsInt() (int64, bool) {
	n, ok := v.payload.(int64)
	return n, ok && !v.isNull
}

func (v Value) AsFloat32() (float32, bool) {
	f, ok := v.payload.(float32)
	return f, ok && !v.isNull
}

func (v Value) AsFloat64() (float64, bool) {
	f, ok := v.payload.(float64)
	return f, ok && !v.isNull
}

func (v Value) AsDecimal() (DecimalLiteral, bool) {
	d, ok := v.payload.(DecimalLiteral)
	return d, ok && !v.isNull
}

func (v Value) AsString() (string, bool) {
	s, ok := v.payload.(string)
	return s, ok && !v.isNull
}

func (v Value) AsBytes() ([]byte, bool) {
	b, ok := v.payload.([]byte)
	return b, ok && !v.isNull
}

func (v Value) AsUUID() (uuid.UUID, bool) {
	u, ok := v.payload.(uuid.UUID)
	return u, ok && !v.isNull
}

func (v Value) AsULID() (ulid.ULID, bool) {
	u, ok := v.payload.(ulid.ULID)
	return u, ok && !v.isNull
}

func (v Value) AsDate() (CivilDate, bool) {
	d, ok := v.payload.(CivilDate)
	return d, ok && !v.isNull
}

func (v Value) AsTime() (CivilTime, bool) {
	t, ok := v.payload.(CivilTime)
	return t, ok && !v.isNull
}

func (v Value) AsDateTime() (time.Time, bool) {
	t, ok := v.payload.(time.Time)
	return t, ok && !v.isNull
}

func (v Value) AsDuration() (time.Duration, bool) {
	d, ok := v.payload.(time.Duration)
	return d, ok && !v.isNull
}

func (v Value) AsJSON() (any, bool) {
	if v.isNull {
		return nil, false
	}
	return v.payload, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray || v.isNull {
		return nil, false
	}
	return v.array, true
}

func (v Value) AsSet() ([]string, bool) {
	s, ok := v.payload.([]string)
	return s, ok && !v.isNull
}

func (v Value) AsGeometry() (GeometryValue, bool) {
	g, ok := v.payload.(GeometryValue)
	return g, ok && !v.isNull
}

func (v Value) AsThing() (Thing, bool) {
	if v.thing == nil || v.isNull {
		return Thing{}, false
	}
	return *v.thing, true
}

func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject || v.isNull {
		return nil, false
	}
	return v.object, true
}

// Equal performs a structural comparison appropriate for idempotence and
// round-trip assertions. Floats compare exactly; callers wanting
// tolerance-based comparison should use harness/verify's own comparator.
func (v Value) Equal(other Value) bool {
	if v.isNull != other.isNull {
		return false
	}
	if v.isNull {
		return true
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindArray:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.object) != len(other.object) {
			return false
		}
		for k, lv := range v.object {
			rv, ok := other.object[k]
			if !ok || !lv.Equal(rv) {
				return false
			}
		}
		return true
	case KindThing:
		lt, _ := v.AsThing()
		rt, _ := other.AsThing()
		return lt.Table == rt.Table && lt.ID.Equal(rt.ID)
	default:
		return fmt.Sprintf("%v", v.payload) == fmt.Sprintf("%v", other.payload)
	}
}
