package domain

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Document is a schema-free document in its normalized wire form: values are
// nil, bool, float64, string, []any or map[string]any. Integers that float64
// cannot hold exactly stay int64 (or uint64). Identifiers and timestamps are
// embedded as {"$oid": ...} and {"$date": ...} wrappers.
type Document map[string]any

const (
	// FieldID is the identifier field of every persisted document.
	FieldID = "_id"
	// FieldName is the optional unique name of a document.
	FieldName = "name"
)

// NormalizeDocument converts arbitrary Go content into a Document. Numbers
// become float64 unless that would lose integer precision, identifiers and timestamps become tagged wrappers, and
// typed maps and slices become map[string]any and []any.
func NormalizeDocument(in map[string]any) (Document, error) {
	if in == nil {
		return Document{}, nil
	}
	v, err := Normalize(in)
	if err != nil {
		return nil, err
	}
	return Document(v.(map[string]any)), nil
}

// Normalize converts a single value into its wire form. See NormalizeDocument.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return t, nil
	case int:
		return normalizeInt(int64(t)), nil
	case int8:
		return normalizeInt(int64(t)), nil
	case int16:
		return normalizeInt(int64(t)), nil
	case int32:
		return normalizeInt(int64(t)), nil
	case int64:
		return normalizeInt(t), nil
	case uint:
		return normalizeUint(uint64(t)), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return normalizeUint(t), nil
	case float32:
		return float64(t), nil
	case numberLiteral:
		return normalizeNumber(t)
	case ObjectID:
		return t.Wire(), nil
	case time.Time:
		return TimestampWire(t), nil
	case Reference:
		return t.Document(), nil
	case Document:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}
	return normalizeReflect(v)
}

// maxExactInt is the largest magnitude below which every integer has an
// exact float64 form.
const maxExactInt = 1 << 53

// numberLiteral is satisfied by json.Number from either JSON codec.
type numberLiteral interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

func normalizeInt(i int64) any {
	if i >= -maxExactInt && i <= maxExactInt {
		return float64(i)
	}
	return i
}

func normalizeUint(u uint64) any {
	if u <= maxExactInt {
		return float64(u)
	}
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func normalizeNumber(n numberLiteral) (any, error) {
	if i, err := n.Int64(); err == nil {
		return normalizeInt(i), nil
	}
	var u big.Int
	if _, ok := u.SetString(n.String(), 10); ok && u.IsUint64() {
		return normalizeUint(u.Uint64()), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return f, nil
}

func normalizeMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, item := range in {
		n, err := Normalize(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeReflect(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return normalizeInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return normalizeUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Struct:
		b, err := jsonMarshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := decodeExact(b, &out); err != nil {
			return nil, err
		}
		return Normalize(out)
	}
	return nil, fmt.Errorf("unsupported document value of type %T", v)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(DeepCopy(map[string]any(d)).(map[string]any))
}

// DeepCopy copies maps and slices recursively. Scalars are returned as is.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = DeepCopy(item)
		}
		return out
	case Document:
		return DeepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	}
	return v
}

// Equal compares two normalized values structurally. Numbers compare by
// exact value, so float64(2) equals int64(2) but no rounding is applied.
func Equal(a, b any) bool {
	if da, ok := a.(Document); ok {
		a = map[string]any(da)
	}
	if db, ok := b.(Document); ok {
		b = map[string]any(db)
	}
	if x, ok := exactNumber(a); ok {
		y, ok := exactNumber(b)
		return ok && x.Cmp(y) == 0
	}
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func exactNumber(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return nil, false
		}
		return new(big.Float).SetFloat64(n), true
	case int64:
		return new(big.Float).SetInt64(n), true
	case uint64:
		return new(big.Float).SetUint64(n), true
	}
	return nil, false
}

// ID returns the document identifier when present.
func (d Document) ID() (ObjectID, bool) {
	return ObjectIDFromWire(d[FieldID])
}

// SetID stores id in wire form.
func (d Document) SetID(id ObjectID) {
	d[FieldID] = id.Wire()
}

// Name returns the document name when present and non-null.
func (d Document) Name() (string, bool) {
	s, ok := d[FieldName].(string)
	return s, ok
}

// Lookup resolves a path of keys through nested mappings. A missing key or
// a non-mapping intermediate value yields a *PathError wrapping
// ErrPathNotFound. A key present with a null value resolves to nil.
func (d Document) Lookup(path []string) (any, error) {
	if len(path) == 0 {
		return nil, &PathError{Path: path, Err: ErrPathNotFound}
	}
	var cur any = map[string]any(d)
	for i, seg := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, &PathError{Path: path, Segment: i, Err: fmt.Errorf("%w: %s is %s, not a mapping", ErrPathNotFound, strings.Join(path[:i], "."), TypeName(cur))}
		}
		next, ok := m[seg]
		if !ok {
			return nil, &PathError{Path: path, Segment: i, Err: ErrPathNotFound}
		}
		cur = next
	}
	return cur, nil
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	}
	return nil, false
}

// TypeName names the JSON type of a normalized value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, Document:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int64, uint64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Strip returns a copy of the document without the given top-level keys.
func (d Document) Strip(keys ...string) Document {
	out := d.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// SortedKeys returns the keys of a mapping in ascending order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
