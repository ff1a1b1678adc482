// Package mysqlconv implements the MySQL forward conversion contract:
// native column value + type descriptor → TypedValue.
package mysqlconv

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/convergedb/sync/pkg/convert/jsonconv"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
)

// ColumnDescriptor carries the native column metadata Convert needs to
// pick the right UniversalType.
type ColumnDescriptor struct {
	Name        string
	NativeType  string // TINYINT, SMALLINT, INT, BIGINT, FLOAT, DOUBLE, DECIMAL, CHAR, VARCHAR, TEXT, BLOB, JSON, ENUM, SET, BIT, DATE, TIME, DATETIME, TIMESTAMP
	Width       int    // declared display width, e.g. TINYINT(1) -> 1
	Length      int    // CHAR/VARCHAR length
	Precision   int    // DECIMAL
	Scale       int    // DECIMAL
	Binary      bool   // BLOB family BINARY flag
	EnumValues  []string
	SetValues   []string
	BooleanHint bool // caller-supplied hint: treat as Bool when value in {0,1}
}

// Config configures the nested JSON conversion used for JSON columns.
type Config struct {
	JSON jsonconv.Config
}

var uuidShape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Convert realizes the MySQL forward conversion surface.
func Convert(native any, col ColumnDescriptor, cfg Config) (utm.TypedValue, error) {
	if native == nil {
		return utm.NullTyped(declaredType(col)), nil
	}

	switch strings.ToUpper(col.NativeType) {
	case "TINYINT":
		return convertTinyInt(native, col)
	case "SMALLINT":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int16(), utm.IntValue(utm.KindInt16, n)), nil
	case "INT", "INTEGER", "MEDIUMINT":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int32(), utm.IntValue(utm.KindInt32, n)), nil
	case "BIGINT":
		n, err := asInt64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, n)), nil
	case "FLOAT":
		f, err := asFloat64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if err := checkFinite(f, utm.KindFloat32); err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Float32(), utm.Float32Value(float32(f))), nil
	case "DOUBLE":
		f, err := asFloat64(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if err := checkFinite(f, utm.KindFloat64); err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Float64(), utm.Float64Value(f)), nil
	case "DECIMAL", "NUMERIC":
		lit, err := asDecimalLiteral(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		t := utm.Decimal(col.Precision, col.Scale)
		return utm.Typed(t, utm.DecimalValue(lit)), nil
	case "CHAR":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Char(col.Length), utm.CharValue(s)), nil
	case "VARCHAR":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if col.Length == 36 && uuidShape.MatchString(s) {
			return utm.Typed(utm.Uuid(), utm.StringValue(utm.KindUuid, s)), nil
		}
		return utm.Typed(utm.VarChar(col.Length), utm.VarCharValue(s)), nil
	case "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Text(), utm.TextValue(s)), nil
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB":
		b, err := asBytes(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if col.Binary {
			return utm.Typed(utm.Blob(), utm.BlobValue(b)), nil
		}
		return utm.Typed(utm.Text(), utm.TextValue(string(b))), nil
	case "JSON":
		raw, err := asBytes(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		tv, err := jsonconv.ParseDocument(raw, cfg.JSON)
		if err != nil {
			return utm.TypedValue{}, errs.NewConversionError(errs.InvalidDecimal, string(raw), "Json", err.Error())
		}
		return tv, nil
	case "ENUM":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Enum(col.EnumValues), utm.EnumValue(s)), nil
	case "SET":
		s, err := asString(native)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return convertSet(s, col), nil
	case "BIT":
		return convertBit(native, col)
	case "DATE":
		return convertDate(native)
	case "TIME":
		return convertTime(native)
	case "DATETIME", "TIMESTAMP":
		return convertDateTime(native)
	default:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, fmt.Sprintf("%v", native), col.NativeType, "unsupported MySQL column type")
	}
}

func declaredType(col ColumnDescriptor) utm.Type {
	tv, _ := Convert(stubNonNilFor(col), col, Config{})
	return tv.Type
}

// stubNonNilFor produces a zero-ish native value of the shape Convert
// expects for this column, purely so a Null TypedValue can still carry
// the correctly declared UniversalType.
func stubNonNilFor(col ColumnDescriptor) any {
	switch strings.ToUpper(col.NativeType) {
	case "TINYINT", "SMALLINT", "INT", "INTEGER", "MEDIUMINT", "BIGINT":
		return int64(0)
	case "FLOAT", "DOUBLE":
		return float64(0)
	case "DECIMAL", "NUMERIC":
		return "0"
	case "DATE":
		return time.Time{}
	case "TIME":
		return time.Time{}
	case "DATETIME", "TIMESTAMP":
		return time.Time{}
	case "BIT":
		return []byte{0}
	default:
		return ""
	}
}

func convertTinyInt(native any, col ColumnDescriptor) (utm.TypedValue, error) {
	n, err := asInt64(native)
	if err != nil {
		return utm.TypedValue{}, err
	}
	if (col.Width == 1 || col.BooleanHint) && (n == 0 || n == 1) {
		return utm.Typed(utm.Bool(), utm.BoolValue(n == 1)), nil
	}
	width := col.Width
	if width == 0 {
		width = 8
	}
	return utm.Typed(utm.Type{Kind: utm.KindInt8, Width: width}, utm.IntValue(utm.KindInt8, n)), nil
}

// convertSet splits a MySQL SET column's comma-joined label string. An
// empty string yields a one-element array whose sole element is the
// empty string — documented, surprising, stable source behavior (spec
// §4.1, §9) that must be preserved rather than sanitized.
func convertSet(s string, col ColumnDescriptor) utm.TypedValue {
	t := utm.Array(utm.Enum(col.SetValues))
	parts := strings.Split(s, ",")
	elems := make([]utm.Value, len(parts))
	for i, p := range parts {
		elems[i] = utm.EnumValue(p)
	}
	return utm.Typed(t, utm.ArrayValue(elems))
}

func convertBit(native any, col ColumnDescriptor) (utm.TypedValue, error) {
	b, err := asBytes(native)
	if err != nil {
		return utm.TypedValue{}, err
	}
	if col.Width == 1 {
		return utm.Typed(utm.Bool(), utm.BoolValue(len(b) > 0 && b[len(b)-1]&1 == 1)), nil
	}
	return utm.Typed(utm.Bytes(), utm.RawBytesValue(b)), nil
}

func convertDate(native any) (utm.TypedValue, error) {
	d, err := asTime(native, "2006-01-02")
	if err != nil {
		return utm.TypedValue{}, err
	}
	return utm.Typed(utm.Date(), utm.DateValue(utm.CivilDate{Year: d.Year(), Month: d.Month(), Day: d.Day()})), nil
}

func convertTime(native any) (utm.TypedValue, error) {
	d, err := asTime(native, "15:04:05")
	if err != nil {
		return utm.TypedValue{}, err
	}
	return utm.Typed(utm.Time(), utm.TimeValue(utm.CivilTime{Hour: d.Hour(), Minute: d.Minute(), Second: d.Second(), Nanos: d.Nanosecond()})), nil
}

func convertDateTime(native any) (utm.TypedValue, error) {
	if t, ok := native.(time.Time); ok {
		return utm.Typed(utm.LocalDateTime(), utm.LocalDateTimeValue(utm.KindLocalDateTime, t)), nil
	}
	s, err := asString(native)
	if err != nil {
		return utm.TypedValue{}, err
	}
	layouts := []string{"2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999", time.RFC3339}
	for _, layout := range layouts {
		if d, err := time.Parse(layout, s); err == nil {
			return utm.Typed(utm.LocalDateTime(), utm.LocalDateTimeValue(utm.KindLocalDateTime, d)), nil
		}
	}
	return utm.TypedValue{}, errs.NewConversionError(errs.InvalidDateTime, s, "LocalDateTime", "expected YYYY-MM-DD[ T]HH:MM:SS[.f] or RFC3339")
}

func asInt64(native any) (int64, error) {
	switch v := native.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
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
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", native), "float", fmt.Sprintf("got %T", native))
	}
}

func checkFinite(f float64, kind utm.Kind) error {
	if f != f { // NaN
		return errs.NewConversionError(errs.NanFloat, "NaN", string(kind), "NaN is not a representable value")
	}
	if f > maxFloat64 || f < -maxFloat64 {
		return errs.NewConversionError(errs.InfinityFloat, "Infinity", string(kind), "infinite values are not representable")
	}
	return nil
}

const maxFloat64 = 1.7976931348623157e+308

func asDecimalLiteral(native any) (string, error) {
	switch v := native.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
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

func asTime(native any, fallbackLayout string) (time.Time, error) {
	if t, ok := native.(time.Time); ok {
		return t, nil
	}
	s, err := asString(native)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(fallbackLayout, s)
	if err != nil {
		return time.Time{}, errs.NewConversionError(errs.InvalidDateTime, s, fallbackLayout, err.Error())
	}
	return d, nil
}

// base64Decode decodes standard-alphabet base64 text into raw bytes.
func base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
