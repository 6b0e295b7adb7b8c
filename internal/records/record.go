package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/whintake/whintake/internal/schema"
)

// Column is one named value of a stored row. Value is nil for SQL NULL.
type Column struct {
	Name  string
	Value any
}

// Record is a stored row in column order.
type Record []Column

// Get returns the value of the named column.
func (r Record) Get(name string) (any, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// String returns the named column formatted as in exports.
func (r Record) String(name string) string {
	v, _ := r.Get(name)
	return format(v)
}

// ID returns the id column.
func (r Record) ID() int64 {
	v, _ := r.Get(schema.ColumnID)
	id, _ := v.(int64)
	return id
}

// Strings returns the values formatted for tabular export. NULL is "".
func (r Record) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = format(c.Value)
	}
	return out
}

// MarshalJSON encodes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Normalize converts decoded JSON into the stored string of every
// registered field. Keys that are not registered fields are ignored.
//
// Arrays are accepted only for multi-select fields and are joined with
// schema.MultiSeparator. Numbers and booleans are stored in their JSON text
// form and null is the same as an absent key. A session_date that is Blank
// is rejected.
func Normalize(in map[string]any) (map[string]string, error) {
	if Blank(in[schema.ColumnSessionDate]) {
		return nil, &ValidationError{Field: schema.ColumnSessionDate, Reason: "is required"}
	}
	out := make(map[string]string, len(in))
	for _, f := range schema.Fields() {
		raw, ok := in[f.Name]
		if !ok || raw == nil {
			out[f.Name] = f.Default()
			continue
		}
		v, err := fieldValue(&f, raw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// Blank reports whether a decoded JSON value counts as not supplied for a
// required field: null, an empty string, any boolean or a zero number.
func Blank(v any) bool {
	switch t := v.(type) {
	case nil, bool:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	return false
}

func fieldValue(f *schema.Field, raw any) (string, error) {
	switch t := raw.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case []string:
		if !f.MultiSelect {
			break
		}
		return strings.Join(t, schema.MultiSeparator), nil
	case []any:
		if !f.MultiSelect {
			break
		}
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return "", &ValidationError{Field: f.Name, Reason: "must contain only strings"}
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, schema.MultiSeparator), nil
	default:
		return "", &ValidationError{Field: f.Name, Reason: "has an unsupported type"}
	}
	return "", &ValidationError{Field: f.Name, Reason: "does not accept multiple values"}
}
