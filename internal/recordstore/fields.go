package recordstore

import (
	"reflect"
	"strings"
	"time"
)

// Has reports whether the top-level or dotted field is present.
func (d Document) Has(key string) bool {
	_, ok := lookup(d.Fields, key)
	return ok
}

// Value returns the raw value at key.
func (d Document) Value(key string) (any, bool) {
	return lookup(d.Fields, key)
}

// String returns the string at key, or "" when missing or not a string.
func (d Document) String(key string) string {
	v, _ := lookup(d.Fields, key)
	s, _ := asString(v)
	return s
}

// Int returns the integer at key, or 0.
func (d Document) Int(key string) int {
	v, _ := lookup(d.Fields, key)
	n, _ := asInt64(v)
	return int(n)
}

// Bool returns the bool at key, or false.
func (d Document) Bool(key string) bool {
	v, _ := lookup(d.Fields, key)
	b, _ := v.(bool)
	return b
}

// Time returns the timestamp at key, or the zero time.
func (d Document) Time(key string) time.Time {
	v, _ := lookup(d.Fields, key)
	t, _ := v.(time.Time)
	return t
}

// Strings returns the list of strings at key. ok is false when the field is
// missing or holds something other than a list.
func (d Document) Strings(key string) ([]string, bool) {
	v, found := lookup(d.Fields, key)
	if !found {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, _ := asString(rv.Index(i).Interface())
		out = append(out, s)
	}
	return out, true
}

// BoolMap returns the map of bools at key.
func (d Document) BoolMap(key string) (map[string]bool, bool) {
	m, ok := d.nested(key)
	if !ok {
		return nil, false
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		b, _ := v.(bool)
		out[k] = b
	}
	return out, true
}

// IntMap returns the map of integers at key.
func (d Document) IntMap(key string) (map[string]int, bool) {
	m, ok := d.nested(key)
	if !ok {
		return nil, false
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		n, _ := asInt64(v)
		out[k] = int(n)
	}
	return out, true
}

func (d Document) nested(key string) (map[string]any, bool) {
	v, found := lookup(d.Fields, key)
	if !found {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func lookup(fields map[string]any, key string) (any, bool) {
	cur := fields
	parts := strings.Split(key, ".")
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// applyFields writes changes into dst, resolving markers through resolve.
// A resolve result of (nil, false) deletes the field.
func applyFields(dst map[string]any, changes Fields, resolve func(any) (any, bool)) {
	for key, value := range changes {
		parts := strings.Split(key, ".")
		cur := dst
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		last := parts[len(parts)-1]
		v, keep := resolve(value)
		if !keep {
			delete(cur, last)
			continue
		}
		cur[last] = v
	}
}

// localResolver turns markers into concrete values for backends that store
// plain data.
func localResolver(now time.Time) func(any) (any, bool) {
	return func(v any) (any, bool) {
		switch v {
		case Delete:
			return nil, false
		case ServerTimestamp:
			return now, true
		}
		return normalize(v), true
	}
}

// cloneFields deep-copies nested maps so a mutation never aliases a snapshot
// that subscribers already hold.
func cloneFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneFields(m)
			continue
		}
		out[k] = v
	}
	return out
}

// Matches reports whether the document satisfies every filter.
func (d Document) Matches(filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(d.Fields, f.Field)
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize strips named types down to their base kinds so typed enums
// compare and encode like the strings they are.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case string, bool, int64, float64, time.Time, map[string]any, []any:
		return t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

func asString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func asInt64(v any) (int64, bool) {
	f, ok := asNumber(v)
	return int64(f), ok
}

func asNumber(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
