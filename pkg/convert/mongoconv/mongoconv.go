// Package mongoconv implements the MongoDB forward conversion contract:
// recursively converting a decoded BSON document into a TypedValue,
// preserving UniversalType distinctions that naive string-flattening
// would collapse (Decimal128 stays a Decimal literal, ObjectID becomes a
// Text carrying its 24-character hex, dates stay ZonedDateTime rather than becoming
// RFC3339 strings).
package mongoconv

import (
	"fmt"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Convert converts a single decoded BSON value (as found in a bson.M
// document, bson.A array, or top-level driver result) into a TypedValue.
func Convert(v any) (utm.TypedValue, error) {
	switch val := v.(type) {
	case nil:
		return utm.NullTyped(utm.Text()), nil
	case bool:
		return utm.Typed(utm.Bool(), utm.BoolValue(val)), nil
	case int32:
		return utm.Typed(utm.Int32(), utm.IntValue(utm.KindInt32, int64(val))), nil
	case int64:
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, val)), nil
	case float64:
		return utm.Typed(utm.Float64(), utm.Float64Value(val)), nil
	case string:
		return utm.Typed(utm.Text(), utm.TextValue(val)), nil
	case []byte:
		return utm.Typed(utm.Bytes(), utm.RawBytesValue(val)), nil
	case bson.Binary:
		return utm.Typed(utm.Bytes(), utm.RawBytesValue(val.Data)), nil
	case bson.ObjectID:
		return utm.Typed(utm.Text(), utm.TextValue(val.Hex())), nil
	case bson.DateTime:
		return utm.Typed(utm.ZonedDateTime(), utm.ZonedDateTimeValue(val.Time().UTC())), nil
	case bson.Decimal128:
		return utm.Typed(utm.Decimal(0, 0), utm.DecimalValue(val.String())), nil
	case bson.JavaScript:
		return utm.Typed(utm.Object(), utm.ObjectValue(map[string]utm.Value{
			"$code": utm.TextValue(string(val)),
		})), nil
	case bson.CodeWithScope:
		scopeTV, err := Convert(val.Scope)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Object(), utm.ObjectValue(map[string]utm.Value{
			"$code":  utm.TextValue(val.Code),
			"$scope": scopeTV.Value,
		})), nil
	case bson.M:
		fields, err := convertDocument(val)
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Object(), utm.ObjectValue(fields)), nil
	case bson.D:
		m := make(bson.M, len(val))
		for _, elem := range val {
			m[elem.Key] = elem.Value
		}
		return Convert(m)
	case map[string]any:
		fields, err := convertDocument(bson.M(val))
		if err != nil {
			return utm.TypedValue{}, err
		}
		return utm.Typed(utm.Object(), utm.ObjectValue(fields)), nil
	case bson.A:
		return convertArray([]any(val))
	case []any:
		return convertArray(val)
	default:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, fmt.Sprintf("%v", val), "UniversalType", fmt.Sprintf("unsupported BSON type %T", val))
	}
}

func convertDocument(m bson.M) (map[string]utm.Value, error) {
	fields := make(map[string]utm.Value, len(m))
	for k, v := range m {
		tv, err := Convert(v)
		if err != nil {
			return nil, err
		}
		fields[k] = tv.Value
	}
	return fields, nil
}

func convertArray(arr []any) (utm.TypedValue, error) {
	elemType := utm.Text()
	elems := make([]utm.Value, len(arr))
	for i, item := range arr {
		tv, err := Convert(item)
		if err != nil {
			return utm.TypedValue{}, err
		}
		if i == 0 {
			elemType = tv.Type
		}
		elems[i] = tv.Value
	}
	return utm.Typed(utm.Array(elemType), utm.ArrayValue(elems)), nil
}

// ConvertDocument converts a top-level BSON document (e.g. a
// changeEvent["fullDocument"] or changeEvent["documentKey"] value from
// a change-stream event) into an Object TypedValue.
func ConvertDocument(m bson.M) (utm.TypedValue, error) {
	fields, err := convertDocument(m)
	if err != nil {
		return utm.TypedValue{}, err
	}
	return utm.Typed(utm.Object(), utm.ObjectValue(fields)), nil
}
