// Package csvconv implements the reverse conversion surface: parsing a
// CSV/JSONL string literal into a TypedValue by dispatching on the
// declared UniversalType. This is the ingest path for file sources and
// for hand-written test fixtures.
package csvconv

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
)

// Parse converts the string literal value into a TypedValue conforming to
// t. An empty input always yields Null of the declared type, regardless
// of kind.
func Parse(value string, t utm.Type) (utm.TypedValue, error) {
	if value == "" {
		return utm.NullTyped(t), nil
	}

	switch t.Kind {
	case utm.KindBool:
		b, err := parseLenientBool(value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Bool", err.Error())
		}
		return utm.Typed(t, utm.BoolValue(b)), nil

	case utm.KindInt8:
		if t.Width == 1 {
			// MySQL TINYINT(1) boolean-hint convention: accept lenient
			// boolean forms the same way the native forward path does.
			if b, err := parseLenientBool(value); err == nil {
				return utm.Typed(t, utm.BoolValue(b)), nil
			}
		}
		n, err := strconv.ParseInt(value, 10, 8)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Int8", "invalid tinyint")
		}
		return utm.Typed(t, utm.IntValue(utm.KindInt8, n)), nil

	case utm.KindInt16:
		n, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Int16", "invalid smallint")
		}
		return utm.Typed(t, utm.IntValue(utm.KindInt16, n)), nil

	case utm.KindInt32:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Int32", "invalid integer")
		}
		return utm.Typed(t, utm.IntValue(utm.KindInt32, n)), nil

	case utm.KindInt64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Int64", "invalid bigint")
		}
		return utm.Typed(t, utm.IntValue(utm.KindInt64, n)), nil

	case utm.KindFloat32:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Float32", "invalid float")
		}
		return utm.Typed(t, utm.Float32Value(float32(f))), nil

	case utm.KindFloat64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Float64", "invalid double")
		}
		return utm.Typed(t, utm.Float64Value(f)), nil

	case utm.KindDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return utm.TypedValue{}, conversionErr(value, "Decimal", "invalid decimal literal")
		}
		return utm.Typed(t, utm.DecimalValue(value)), nil

	case utm.KindChar, utm.KindVarChar, utm.KindText:
		return utm.Typed(t, utm.StringValue(t.Kind, value)), nil

	case utm.KindEnum:
		return utm.Typed(t, utm.EnumValue(value)), nil

	case utm.KindBlob, utm.KindBytes:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, string(t.Kind), "invalid base64")
		}
		return utm.Typed(t, utm.BytesValue(t.Kind, b)), nil

	case utm.KindUuid:
		return utm.Typed(t, utm.StringValue(utm.KindUuid, value)), nil

	case utm.KindUlid:
		return utm.Typed(t, utm.StringValue(utm.KindUlid, value)), nil

	case utm.KindDate:
		d, err := time.Parse("2006-01-02", value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Date", "expected YYYY-MM-DD")
		}
		return utm.Typed(t, utm.DateValue(utm.CivilDate{Year: d.Year(), Month: d.Month(), Day: d.Day()})), nil

	case utm.KindTime:
		d, err := time.Parse("15:04:05", value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Time", "expected HH:MM:SS")
		}
		return utm.Typed(t, utm.TimeValue(utm.CivilTime{Hour: d.Hour(), Minute: d.Minute(), Second: d.Second()})), nil

	case utm.KindLocalDateTime, utm.KindLocalDateTimeNano, utm.KindZonedDateTime:
		d, err := parseDateTime(value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, string(t.Kind), "expected RFC3339 or YYYY-MM-DD[T ]HH:MM:SS")
		}
		if t.Kind == utm.KindZonedDateTime {
			return utm.Typed(t, utm.ZonedDateTimeValue(d)), nil
		}
		return utm.Typed(t, utm.LocalDateTimeValue(t.Kind, d)), nil

	case utm.KindDuration:
		d, err := parseISODuration(value)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Duration", err.Error())
		}
		return utm.Typed(t, utm.DurationValue(d)), nil

	case utm.KindArray:
		return parseArray(value, t)

	case utm.KindThing:
		idx := strings.IndexByte(value, ':')
		if idx < 0 {
			return utm.TypedValue{}, conversionErr(value, "Thing", "expected table:id")
		}
		return utm.Typed(t, utm.ThingValue(utm.Thing{
			Table: value[:idx],
			ID:    utm.TextValue(value[idx+1:]),
		})), nil

	default:
		return utm.TypedValue{}, conversionErr(value, t.String(), "unsupported reverse conversion")
	}
}

func conversionErr(value, expected, reason string) error {
	return errs.NewConversionError(errs.UnsupportedType, value, expected, reason)
}

func parseLenientBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "t", "y":
		return true, nil
	case "false", "0", "no", "f", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}

func parseDateTime(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// parseISODuration parses the restricted ISO-8601 form PT<seconds>[.<nanos>]S
// used across the pipeline.
func parseISODuration(value string) (time.Duration, error) {
	if !strings.HasPrefix(value, "PT") || !strings.HasSuffix(value, "S") {
		return 0, fmt.Errorf("expected PT<seconds>[.<nanos>]S")
	}
	body := value[2 : len(value)-1]
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, fmt.Errorf("expected PT<seconds>[.<nanos>]S")
	}
	return time.Duration(f * float64(time.Second)), nil
}

// parseArray parses a JSON array literal, recursively converting each
// element to the declared element type. Bare JSON strings are used
// as-is; non-string JSON values are stringified first before being
// handed to the element parser.
func parseArray(value string, t utm.Type) (utm.TypedValue, error) {
	if t.Element == nil {
		return utm.TypedValue{}, conversionErr(value, "Array", "array type missing element type")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return utm.TypedValue{}, conversionErr(value, "Array", "expected a JSON array")
	}

	elems := make([]utm.Value, 0, len(raw))
	for _, r := range raw {
		literal, err := elementLiteral(r)
		if err != nil {
			return utm.TypedValue{}, conversionErr(value, "Array", err.Error())
		}
		elemTV, err := Parse(literal, *t.Element)
		if err != nil {
			return utm.TypedValue{}, err
		}
		elems = append(elems, elemTV.Value)
	}
	return utm.Typed(t, utm.ArrayValue(elems)), nil
}

func elementLiteral(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	// Non-string JSON value: stringify it before handing to the element
	// parser (numbers, booleans, nested arrays all become their JSON text).
	return string(raw), nil
}
