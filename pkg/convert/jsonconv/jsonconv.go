// Package jsonconv implements the recursive JSON→UTM conversion pass
// shared by every source whose native values are JSON-ish documents
// (MongoDB embedded documents, MySQL/PostgreSQL JSON columns, Kafka
// message bodies, Neo4j opt-in string parsing).
package jsonconv

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/convergedb/sync/pkg/utm"
)

// Config recognizes per-path conversion hints: dotted paths whose 0/1
// must become Bool, dotted paths whose comma-joined strings must become
// Array<Text>, and the path separator (default ".").
type Config struct {
	BooleanPaths  map[string]struct{}
	SetPaths      map[string]struct{}
	PathSeparator string
}

func (c Config) sep() string {
	if c.PathSeparator == "" {
		return "."
	}
	return c.PathSeparator
}

func (c Config) isBooleanPath(path string) bool {
	_, ok := c.BooleanPaths[path]
	return ok
}

func (c Config) isSetPath(path string) bool {
	_, ok := c.SetPaths[path]
	return ok
}

// ParseDocument decodes raw JSON bytes preserving arbitrary-precision
// number literals (via json.Number) and converts the result starting at
// the empty root path.
func ParseDocument(raw []byte, cfg Config) (utm.TypedValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return utm.TypedValue{}, err
	}
	return Convert(v, "", cfg), nil
}

// Convert converts an already-decoded JSON value (as produced by
// json.Decoder with UseNumber, or by a driver's native JSON/BSON
// unmarshal into Go generic types) into a TypedValue, applying the
// boolean_paths/set_paths configuration at every dotted path.
func Convert(v any, path string, cfg Config) utm.TypedValue {
	switch val := v.(type) {
	case nil:
		return utm.NullTyped(utm.Text())
	case bool:
		return utm.Typed(utm.Bool(), utm.BoolValue(val))
	case json.Number:
		return convertNumber(val, path, cfg)
	case float64:
		// Driver-native decoders (BSON, etc.) hand us float64 directly
		// rather than json.Number; route through the same path.
		return convertNumber(json.Number(strconv.FormatFloat(val, 'g', -1, 64)), path, cfg)
	case int:
		return convertNumber(json.Number(strconv.Itoa(val)), path, cfg)
	case int64:
		return convertNumber(json.Number(strconv.FormatInt(val, 10)), path, cfg)
	case string:
		if cfg.isSetPath(path) {
			return convertSetString(val)
		}
		return utm.Typed(utm.Text(), utm.TextValue(val))
	case map[string]any:
		return convertObject(val, path, cfg)
	case []any:
		return convertArray(val, path, cfg)
	default:
		return utm.Typed(utm.Text(), utm.TextValue(""))
	}
}

func convertNumber(n json.Number, path string, cfg Config) utm.TypedValue {
	s := n.String()
	if i, err := n.Int64(); err == nil && !strings.ContainsAny(s, ".eE") {
		if cfg.isBooleanPath(path) && (i == 0 || i == 1) {
			return utm.Typed(utm.Bool(), utm.BoolValue(i == 1))
		}
		return utm.Typed(utm.Int64(), utm.IntValue(utm.KindInt64, i))
	}
	if f, err := n.Float64(); err == nil {
		return utm.Typed(utm.Float64(), utm.Float64Value(f))
	}
	// Exceeds float64 range: preserve the literal text.
	return utm.Typed(utm.Text(), utm.TextValue(s))
}

func convertSetString(s string) utm.TypedValue {
	if s == "" {
		return utm.Typed(utm.Array(utm.Text()), utm.ArrayValue([]utm.Value{utm.TextValue("")}))
	}
	parts := strings.Split(s, ",")
	elems := make([]utm.Value, len(parts))
	for i, p := range parts {
		elems[i] = utm.TextValue(p)
	}
	return utm.Typed(utm.Array(utm.Text()), utm.ArrayValue(elems))
}

func convertObject(m map[string]any, path string, cfg Config) utm.TypedValue {
	fields := make(map[string]utm.Value, len(m))
	for k, fv := range m {
		childPath := k
		if path != "" {
			childPath = path + cfg.sep() + k
		}
		fields[k] = Convert(fv, childPath, cfg).Value
	}
	return utm.Typed(utm.Object(), utm.ObjectValue(fields))
}

func convertArray(arr []any, path string, cfg Config) utm.TypedValue {
	elemType := utm.Text()
	elems := make([]utm.Value, len(arr))
	for i, e := range arr {
		tv := Convert(e, path, cfg)
		if i == 0 {
			elemType = tv.Type
		}
		elems[i] = tv.Value
	}
	return utm.Typed(utm.Array(elemType), utm.ArrayValue(elems))
}
