package document

import (
	"maps"
	"reflect"
	"sort"
)

// Value is the editable content of a Document. Text kinds use Text,
// structured kinds use Fields.
type Value struct {
	Text   string         `json:"text,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Text builds a text value.
func Text(s string) Value {
	return Value{Text: s}
}

// Fields builds a structured value from a field map.
func Fields(f map[string]any) Value {
	return Value{Fields: maps.Clone(f)}
}

// Clone returns a copy that shares no map with v.
func (v Value) Clone() Value {
	return Value{Text: v.Text, Fields: maps.Clone(v.Fields)}
}

// With returns a copy of v with one field replaced.
func (v Value) With(field string, val any) Value {
	out := v.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	out.Fields[field] = val
	return out
}

// Field returns a field value.
func (v Value) Field(name string) (any, bool) {
	val, ok := v.Fields[name]
	return val, ok
}

// FieldNames returns the field names in sorted order.
func (v Value) FieldNames() []string {
	names := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal compares text by string equality and fields one by one. A nil field
// map equals an empty one.
func (v Value) Equal(o Value) bool {
	if v.Text != o.Text {
		return false
	}
	if len(v.Fields) != len(o.Fields) {
		return false
	}
	for k, a := range v.Fields {
		b, ok := o.Fields[k]
		if !ok || !fieldEqual(a, b) {
			return false
		}
	}
	return true
}

// ChangedFields lists the fields whose value differs between v and o.
func (v Value) ChangedFields(o Value) []string {
	seen := make(map[string]struct{})
	var out []string
	for k, a := range v.Fields {
		seen[k] = struct{}{}
		if b, ok := o.Fields[k]; !ok || !fieldEqual(a, b) {
			out = append(out, k)
		}
	}
	for k := range o.Fields {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func fieldEqual(a, b any) bool {
	// JSON decoding yields float64 for every number; compare numerics by value.
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
