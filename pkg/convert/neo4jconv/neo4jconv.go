// Package neo4jconv implements the Neo4j forward conversion contract:
// each node/relationship property is converted by its driver-native
// Cypher type, preserving UniversalType distinctions a naive flattening
// would collapse (points become Geometry, not a string pair; Decimal-
// like precision is not a concern here since Neo4j has no fixed-point
// type).
package neo4jconv

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const wgs84SRID = 4326

// Config configures the opt-in JSON parsing and the IANA zone used to
// combine timezone-naive Date/LocalDateTime properties.
type Config struct {
	Zone      *time.Location
	JSONOptIn map[string]struct{} // keys are "<label>.<property>"
}

func (c Config) jsonOptedIn(label, property string) bool {
	if c.JSONOptIn == nil {
		return false
	}
	_, ok := c.JSONOptIn[label+"."+property]
	return ok
}

// Convert converts a single property value keyed by (label, property)
// into a TypedValue.
func Convert(label, property string, v any, cfg Config) (utm.TypedValue, error) {
	switch val := v.(type) {
	case nil:
		return utm.NullTyped(utm.Text()), nil
	case bool:
		return utm.Typed(utm.Bool(), utm.BoolValue(val)), nil
	case int64:
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, val)), nil
	case int:
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, int64(val))), nil
	case float64:
		if val != val {
			return utm.TypedValue{}, errs.NewConversionError(errs.NanFloat, "NaN", "Float64", "NaN is not a representable value")
		}
		if val > 1.7976931348623157e+308 || val < -1.7976931348623157e+308 {
			return utm.TypedValue{}, errs.NewConversionError(errs.InfinityFloat, "Infinity", "Float64", "infinite values are not representable")
		}
		return utm.Typed(utm.Float64(), utm.Float64Value(val)), nil
	case []byte:
		return utm.Typed(utm.Bytes(), utm.RawBytesValue(val)), nil
	case string:
		return convertString(label, property, val, cfg), nil
	case dbtype.Point2D:
		return utm.Typed(utm.Geometry(utm.GeometryPoint), utm.GeometryValueOf(utm.GeometryValue{
			Type:        utm.GeometryPoint,
			Coordinates: []float64{val.X, val.Y},
			SRID:        int(val.SpatialRefId),
		})), nil
	case dbtype.Point3D:
		return utm.Typed(utm.Geometry(utm.GeometryPoint), utm.GeometryValueOf(utm.GeometryValue{
			Type:        utm.GeometryPoint,
			Coordinates: []float64{val.X, val.Y, val.Z},
			SRID:        int(val.SpatialRefId),
		})), nil
	case dbtype.Date:
		return combineDateWithZone(time.Time(val), cfg)
	case dbtype.LocalDateTime:
		return combineDateWithZone(time.Time(val), cfg)
	case dbtype.LocalTime:
		t := time.Time(val)
		return utm.Typed(utm.Time(), utm.TimeValue(utm.CivilTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanos: t.Nanosecond()})), nil
	case time.Time:
		// DateTime and DateTimeZoneId both surface as a zoned time.Time
		// from the driver — they carry a full offset, so they map
		// directly onto ZonedDateTime.
		return utm.Typed(utm.ZonedDateTime(), utm.ZonedDateTimeValue(val)), nil
	case dbtype.Node:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, val.ElementId, "UniversalType", "Node is not a valid property value")
	case dbtype.Relationship:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, val.ElementId, "UniversalType", "Relationship is not a valid property value")
	case dbtype.Path:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, "path", "UniversalType", "Path is not a valid property value")
	case dbtype.UnboundRelationship:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, val.ElementId, "UniversalType", "UnboundedRelation is not a valid property value")
	case []any:
		return convertList(label, property, val, cfg)
	default:
		return utm.TypedValue{}, errs.NewConversionError(errs.UnsupportedType, fmt.Sprintf("%v", val), "UniversalType", fmt.Sprintf("unsupported Neo4j property type %T", val))
	}
}

// convertString applies opt-in JSON parsing: a string is parsed as JSON
// only when the caller opted in for this (label, property) pair and the
// result is an object or array. Nested strings are never parsed, since
// Convert only calls convertString at the top property level.
func convertString(label, property, s string, cfg Config) utm.TypedValue {
	if cfg.jsonOptedIn(label, property) {
		var decoded any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err == nil {
			switch decoded.(type) {
			case map[string]any, []any:
				return jsonValueToTyped(decoded)
			}
		}
	}
	return utm.Typed(utm.Text(), utm.TextValue(s))
}

func jsonValueToTyped(v any) utm.TypedValue {
	switch val := v.(type) {
	case map[string]any:
		fields := make(map[string]utm.Value, len(val))
		for k, fv := range val {
			fields[k] = jsonValueToTyped(fv).Value
		}
		return utm.Typed(utm.Object(), utm.ObjectValue(fields))
	case []any:
		elemType := utm.Text()
		elems := make([]utm.Value, len(val))
		for i, item := range val {
			tv := jsonValueToTyped(item)
			if i == 0 {
				elemType = tv.Type
			}
			elems[i] = tv.Value
		}
		return utm.Typed(utm.Array(elemType), utm.ArrayValue(elems))
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, i))
		}
		f, _ := val.Float64()
		return utm.Typed(utm.Float64(), utm.Float64Value(f))
	case string:
		return utm.Typed(utm.Text(), utm.TextValue(val))
	case bool:
		return utm.Typed(utm.Bool(), utm.BoolValue(val))
	case nil:
		return utm.NullTyped(utm.Text())
	default:
		return utm.Typed(utm.Text(), utm.TextValue(""))
	}
}

func convertList(label, property string, items []any, cfg Config) (utm.TypedValue, error) {
	elemType := utm.Text()
	elems := make([]utm.Value, len(items))
	for i, item := range items {
		tv, err := Convert(label, property, item, cfg)
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

// combineDateWithZone combines a timezone-naive Date/LocalDateTime wall
// clock (held by the driver as a UTC time.Time with the right calendar
// fields) with cfg.Zone to produce a UTC instant, returned as a
// LocalDateTime TypedValue. A wall-clock reading that falls in a DST
// fold (repeated local hour) or gap (skipped local hour) is rejected
// rather than silently resolved to some nearby instant.
func combineDateWithZone(wall time.Time, cfg Config) (utm.TypedValue, error) {
	if cfg.Zone == nil {
		return utm.TypedValue{}, errs.NewConversionError(errs.InvalidTimezone, wall.Format(time.RFC3339), "LocalDateTime", "no IANA zone configured to combine with a timezone-naive Neo4j value")
	}
	y, mo, d := wall.Date()
	h, mi, s := wall.Clock()
	ns := wall.Nanosecond()

	if ambiguous(y, mo, d, h, mi, s, ns, cfg.Zone) {
		return utm.TypedValue{}, errs.NewConversionError(errs.AmbiguousDateTime, wall.Format("2006-01-02T15:04:05"), "LocalDateTime", cfg.Zone.String())
	}

	zoned := time.Date(y, mo, d, h, mi, s, ns, cfg.Zone)
	return utm.Typed(utm.LocalDateTime(), utm.LocalDateTimeValue(utm.KindLocalDateTime, zoned.UTC())), nil
}

// ambiguous detects a DST gap or fold. In a gap the wall-clock reading
// does not exist, so Date() normalizes it to a different local time. In
// a fold it corresponds to two distinct UTC instants; Date() settles on
// one of them, so the offsets in effect an hour before and an hour after
// are probed: if re-resolving the same wall-clock fields under a
// different offset still lands on the same local date/time, both
// offsets are valid for that wall clock.
func ambiguous(y int, mo time.Month, d, h, mi, s, ns int, loc *time.Location) bool {
	t := time.Date(y, mo, d, h, mi, s, ns, loc)
	if t.Day() != d || t.Hour() != h || t.Minute() != mi {
		return true
	}
	_, offNow := t.Zone()
	for _, near := range []time.Time{t.Add(-time.Hour), t.Add(time.Hour)} {
		_, off := near.Zone()
		if off == offNow {
			continue
		}
		probe := time.Date(y, mo, d, h, mi, s, ns, time.FixedZone("", off)).In(loc)
		if probe.Year() == y && probe.Month() == mo && probe.Day() == d &&
			probe.Hour() == h && probe.Minute() == mi && probe.Second() == s {
			return true
		}
	}
	return false
}
