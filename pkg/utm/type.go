package utm

// Kind names one variant of the closed UniversalType algebra.
type Kind string

const (
	KindBool              Kind = "bool"
	KindInt8              Kind = "int8"
	KindInt16             Kind = "int16"
	KindInt32             Kind = "int32"
	KindInt64             Kind = "int64"
	KindFloat32           Kind = "float32"
	KindFloat64           Kind = "float64"
	KindDecimal           Kind = "decimal"
	KindChar              Kind = "char"
	KindVarChar           Kind = "varchar"
	KindText              Kind = "text"
	KindBlob              Kind = "blob"
	KindBytes             Kind = "bytes"
	KindUuid              Kind = "uuid"
	KindUlid              Kind = "ulid"
	KindDate              Kind = "date"
	KindTime              Kind = "time"
	KindLocalDateTime     Kind = "local_date_time"
	KindLocalDateTimeNano Kind = "local_date_time_nano"
	KindZonedDateTime     Kind = "zoned_date_time"
	KindDuration          Kind = "duration"
	KindJSON              Kind = "json"
	KindJSONB             Kind = "jsonb"
	KindArray             Kind = "array"
	KindSet               Kind = "set"
	KindEnum              Kind = "enum"
	KindGeometry          Kind = "geometry"
	KindThing             Kind = "thing"
	KindObject            Kind = "object"
)

// GeometryType names the GeoJSON-shaped geometry variant carried by a
// Geometry-kinded type/value pair.
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryLineString      GeometryType = "LineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
)

// Type is the closed, tagged UniversalType variant. Only the fields
// relevant to Kind are meaningful; the rest are zero. A flat
// struct-per-variant shape rather than an interface-per-variant
// hierarchy, so a Type value can be copied, compared, and stored
// without boxing.
type Type struct {
	Kind Kind

	// Int8 width in bits (8, declared explicitly so MySQL's TINYINT(1)
	// boolean-hint convention and wider TINYINT columns both round-trip).
	Width int

	// Decimal
	Precision int
	Scale     int

	// Char / VarChar
	Length int

	// Array element type. Shared by every element of the array even
	// when the array is empty (spec invariant (d)).
	Element *Type

	// Set / Enum allowed label set.
	AllowedValues []string

	// Geometry
	GeometryType GeometryType
}

func Bool() Type    { return Type{Kind: KindBool} }
func Int8() Type    { return Type{Kind: KindInt8, Width: 8} }
func Int16() Type   { return Type{Kind: KindInt16, Width: 16} }
func Int32() Type   { return Type{Kind: KindInt32, Width: 32} }
func Int64() Type    { return Type{Kind: KindInt64, Width: 64} }
func Float32() Type  { return Type{Kind: KindFloat32} }
func Float64() Type  { return Type{Kind: KindFloat64} }

func Decimal(precision, scale int) Type {
	return Type{Kind: KindDecimal, Precision: precision, Scale: scale}
}
func Char(length int) Type    { return Type{Kind: KindChar, Length: length} }
func VarChar(length int) Type { return Type{Kind: KindVarChar, Length: length} }
func Text() Type              { return Type{Kind: KindText} }
func Blob() Type              { return Type{Kind: KindBlob} }
func Bytes() Type             { return Type{Kind: KindBytes} }
func Uuid() Type              { return Type{Kind: KindUuid} }
func Ulid() Type              { return Type{Kind: KindUlid} }
func Date() Type              { return Type{Kind: KindDate} }
func Time() Type              { return Type{Kind: KindTime} }
func LocalDateTime() Type     { return Type{Kind: KindLocalDateTime} }
func LocalDateTimeNano() Type { return Type{Kind: KindLocalDateTimeNano} }
func ZonedDateTime() Type     { return Type{Kind: KindZonedDateTime} }
func Duration() Type          { return Type{Kind: KindDuration} }
func JSON() Type              { return Type{Kind: KindJSON} }
func JSONB() Type             { return Type{Kind: KindJSONB} }
func Object() Type            { return Type{Kind: KindObject} }
func ThingType() Type         { return Type{Kind: KindThing} }

func Array(element Type) Type {
	e := element
	return Type{Kind: KindArray, Element: &e}
}

func Set(allowed []string) Type {
	return Type{Kind: KindSet, AllowedValues: append([]string(nil), allowed...)}
}

func Enum(allowed []string) Type {
	return Type{Kind: KindEnum, AllowedValues: append([]string(nil), allowed...)}
}

func Geometry(gt GeometryType) Type {
	return Type{Kind: KindGeometry, GeometryType: gt}
}

// String renders the spelled form used in schema description files (§6).
func (t Type) String() string {
	switch t.Kind {
	case KindInt8:
		return "Int8"
	case KindArray:
		if t.Element != nil {
			return "Array<" + t.Element.String() + ">"
		}
		return "Array"
	case KindDecimal:
		return "Decimal"
	case KindGeometry:
		return "Geometry(" + string(t.GeometryType) + ")"
	default:
		return string(t.Kind)
	}
}
