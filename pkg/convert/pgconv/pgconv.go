// Package pgconv implements the PostgreSQL forward conversion contract
// shared by both trigger/audit-table polling and WAL logical decoding:
// native column value + type descriptor → TypedValue, and the
// Row/Action change envelope produced by both capture modes.
package pgconv

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/convergedb/sync/pkg/convert/jsonconv"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
)

// ColumnDescriptor carries the native PostgreSQL column metadata Convert
// needs to pick the right UniversalType.
type ColumnDescriptor struct {
	Name       string
	NativeType string // bool, smallint, integer, bigint, real, double precision, numeric, char, varchar, text, bytea, uuid, date, time, timestamp, timestamptz, interval, json, jsonb, <enum label>, array element types via Element
	Length     int
	Precision  int
	Scale      int
	Element    *ColumnDescriptor // for ARRAY columns
}

// Config configures nested JSON conversion for json/jsonb columns.
type Config struct {
	JSON jsonconv.Config
}

// Convert realizes the PostgreSQL forward conversion surface. native is
// the value as decoded off the wire (WAL tuple text, or a pgx-typed
// value from a trigger/audit-table poll) — both paths hand Convert a
// string or Go-native scalar.
func Convert(native any, col ColumnDescriptor, cfg Config) (utm.TypedValue, error) {
	if native == nil {
		return utm.NullTyped(declaredType(col)), nil
	}

	switch strings.ToLower(col.NativeType) {
	case "boolean", "bool":
		b, err := asBool(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Bool(), utm.BoolValue(b)), nil
	case "smallint", "int2":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int16(), utm.IntValue(utm.KindInt16, n)), nil
	case "integer", "int", "int4", "serial":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int32(), utm.IntValue(utm.KindInt32, n)), nil
	case "bigint", "int8", "bigserial":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, n)), nil
	case "real", "float4":
		f, err := asFloat64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if err := checkFinite(f, utm.KindFloat32); err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Float32(), utm.Float32Value(float32(f))), nil
	case "double precision", "float8":
		f, err := asFloat64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if err := checkFinite(f, utm.KindFloat64); err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Float64(), utm.Float64Value(f)), nil
	case "numeric", "decimal":
		lit, err := asDecimalLiteral(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Decimal(col.Precision, col.Scale), utm.DecimalValue(lit)), nil
	case "char", "character", "bpchar":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Char(col.Length), utm.CharValue(s)), nil
	case "varchar", "character varying":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.VarChar(col.Length), utm.VarCharValue(s)), nil
	case "text":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Text(), utm.TextValue(s)), nil
	case "bytea":
		b, err := asBytesHex(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Bytes(), utm.RawBytesValue(b)), nil
	case "uuid":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Uuid(), utm.StringValue(utm.KindUuid, s)), nil
	case "date":
		return convertDate(native)
	case "time", "time without time zone":
		return convertTime(native)
	case "timestamp", "timestamp without time zone":
		return convertTimestamp(native, false)
	case "timestamptz", "timestamp with time zone":
		return convertTimestamp(native, true)
	case "interval":
		d, err := asDuration(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Duration(), utm.DurationValue(d)), nil
	case "json", "jsonb":
		raw, err := asBytes(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		tv, err := jsonconv.ParseDocument(raw, cfg.JSON)
		if err != nil {
			return utm.TypedValue{}, errs.NewConversionError(errs.InvalidDecimal, string(raw), "Json", err.Error())
		}
		return tv, nil
	case "array":
		return convertArray(native, col, cfg)
	default:
		// Unrecognized native type names (custom enum labels, domains) are
		// carried through as Text rather than rejected.
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Text(), utm.TextValue(s)), nil
	}
}

func declaredType(col ColumnDescriptor) utm.Type {
	switch strings.ToLower(col.NativeType) {
	case "boolean", "bool":
		return utm.Bool()
	case "smallint", "int2":
		return utm.Int16()
	case "integer", "int", "int4", "serial":
		return utm.Int32()
	case "bigint", "int8", "bigserial":
		return utm.Int64()
	case "real", "float4":
		return utm.Float32()
	case "double precision", "float8":
		return utm.Float64()
	case "numeric", "decimal":
		return utm.Decimal(col.Precision, col.Scale)
	case "char", "character", "bpchar":
		return utm.Char(col.Length)
	case "varchar", "character varying":
		return utm.VarChar(col.Length)
	case "bytea":
		return utm.Bytes()
	case "uuid":
		return utm.Uuid()
	case "date":
		return utm.Date()
	case "time", "time without time zone":
		return utm.Time()
	case "timestamp", "timestamp without time zone":
		return utm.LocalDateTime()
	case "timestamptz", "timestamp with time zone":
		return utm.ZonedDateTime()
	case "interval":
		return utm.Duration()
	case "json":
		return utm.JSON()
	case "jsonb":
		return utm.JSONB()
	case "array":
		if col.Element != nil {
			return utm.Array(declaredType(*col.Element))
		}
		return utm.Array(utm.Text())
	default:
		return utm.Text()
	}
}

func convertArray(native any, col ColumnDescriptor, cfg Config) (utm.TypedValue, error) {
	if col.Element == nil {
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, fmt.Sprintf("%v", native), "Array", "array column missing element descriptor")
	}
	items, ok := native.([]any)
	if !ok {
		return utm.TypedValue{}, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "Array", fmt.Sprintf("got %T", native))
	}
	elems := make([]utm.Value, len(items))
	for i, item := range items {
		tv, err := Convert(item, *col.Element, cfg)
		if err != nil {
			return utm.TypedValue{}, err
		}
		elems[i] = tv.Value
	}
	return utm.Typed(utm.Array(declaredType(*col.Element)), utm.ArrayValue(elems)), nil
}

func convertDate(native any) (utm.TypedValue, error) {
	t, err := asTime(native, "2006-01-02")
	if err != nil {
		return utm.TypedValue{}, err
	}
	return utm.Typed(utm.Date(), utm.DateValue(utm.CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()})), nil
}

func convertTime(native any) (utm.TypedValue, error) {
	t, err := asTime(native, "15:04:05")
	if err != nil {
		return utm.TypedValue{}, err
	}
	return utm.Typed(utm.Time(), utm.TimeValue(utm.CivilTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanos: t.Nanosecond()})), nil
}

func convertTimestamp(native any, zoned bool) (utm.TypedValue, error) {
	if t, ok := native.(time.Time); ok {
		if zoned {
			return utm.Typed(utm.ZonedDateTime(), utm.ZonedDateTimeValue(t)), nil
		}
		return utm.Typed(utm.LocalDateTime(), utm.LocalDateTimeValue(utm.KindLocalDateTime, t)), nil
	}
	s, err := asString(native)
	if err != nil {
		return utm.TypedValue{}, err
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07", "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"}
	for _, layout := range layouts {
		if d, err := time.Parse(layout, s); err == nil {
			if zoned {
				return utm.Typed(utm.ZonedDateTime(), utm.ZonedDateTimeValue(d)), nil
			}
			return utm.Typed(utm.LocalDateTime(), utm.LocalDateTimeValue(utm.KindLocalDateTime, d)), nil
		}
	}
	return utm.TypedValue{}, errs.NewConversionError(errs.InvalidDateTime, s, "timestamp", "unrecognized PostgreSQL timestamp literal")
}

func asBool(native any) (bool, error) {
	switch v := native.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "t", "true", "TRUE":
			return true, nil
		case "f", "false", "FALSE":
			return false, nil
		}
	}
	return false, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "Bool", fmt.Sprintf("got %T", native))
}

func asInt64(native any) (int64, error) {
	switch v := native.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "integer", fmt.Sprintf("got %T", native))
	}
}

func asFloat64(native any) (float64, error) {
	switch v := native.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "float", fmt.Sprintf("got %T", native))
	}
}

func checkFinite(f float64, kind utm.Kind) error {
	if f != f {
		return errs.NewConversionError(errs.NanFloat, "NaN", string(kind), "NaN is not a representable value")
	}
	if f > 1.7976931348623157e+308 || f < -1.7976931348623157e+308 {
		return errs.NewConversionError(errs.InfinityFloat, "Infinity", string(kind), "infinite values are not representable")
	}
	return nil
}

func asDecimalLiteral(native any) (string, error) {
	switch v := native.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", errs.NewConversionError(errs.InvalidDecimal, fmt.Sprintf("%v", native), "Decimal", fmt.Sprintf("got %T", native))
	}
}

func asString(native any) (string, error) {
	switch v := native.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func asBytes(native any) ([]byte, error) {
	switch v := native.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "bytes", fmt.Sprintf("got %T", native))
	}
}

// asBytesHex decodes PostgreSQL's bytea hex output format (\x-prefixed)
// as well as raw []byte values from a driver that already decoded it.
func asBytesHex(native any) ([]byte, error) {
	switch v := native.(type) {
	case []byte:
		return v, nil
	case string:
		s := strings.TrimPrefix(v, "\\x")
		if s == v && v != "" {
			return []byte(v), nil // not hex-encoded, pass through raw
		}
		out := make([]byte, len(s)/2)
		for i := range out {
			b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
			if err != nil {
				return nil, errs.NewConversionError(errs.UnsupportedType, v, "Bytes", "invalid bytea hex encoding")
			}
			out[i] = byte(b)
		}
		return out, nil
	default:
		return nil, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "Bytes", fmt.Sprintf("got %T", native))
	}
}

func asTime(native any, layout string) (time.Time, error) {
	if t, ok := native.(time.Time); ok {
		return t, nil
	}
	s, err := asString(native)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, errs.NewConversionError(errs.InvalidDateTime, s, layout, err.Error())
	}
	return t, nil
}

// asDuration parses PostgreSQL's default interval output form
// "HH:MM:SS[.ffffff]", optionally prefixed by "D days ".
func asDuration(native any) (time.Duration, error) {
	s, err := asString(native)
	if err != nil {
		return 0, err
	}
	var days int
	if idx := strings.Index(s, "days "); idx >= 0 {
		fmt.Sscanf(s, "%d days", &days)
		s = s[idx+5:]
	} else if idx := strings.Index(s, "day "); idx >= 0 {
		fmt.Sscanf(s, "%d day", &days)
		s = s[idx+4:]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, errs.NewConversionError(errs.UnsupportedType, s, "Duration", "expected HH:MM:SS interval form")
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, errs.NewConversionError(errs.UnsupportedType, s, "Duration", "invalid interval component")
	}
	total := time.Duration(days)*24*time.Hour + time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	return total, nil
}
