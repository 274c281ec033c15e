package document

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Hydrate builds a document of the given kind from a wire-format (JSON
// decoded) or store-format mapping. Unknown fields and type mismatches are
// rejected with a SchemaError naming the field. Empty values are dropped.
func Hydrate(k Kind, raw map[string]interface{}) (*Document, error) {
	s, err := Lookup(k)
	if err != nil {
		return nil, Fail(SchemaError, nil, "%v", err)
	}
	fields, err := s.HydrateFields(raw)
	if err != nil {
		return nil, err
	}
	d := &Document{Kind: k, Fields: fields}
	d.ID, _ = fields[s.IDField].(string)
	d.UserID, _ = fields["user_id"].(string)
	return d, nil
}

// HydrateFields coerces every entry of raw against the schema.
func (s *Schema) HydrateFields(raw map[string]interface{}) (map[string]interface{}, error) {
	return s.hydrate("", raw)
}

func (s *Schema) hydrate(prefix string, raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for name, v := range raw {
		f, ok := s.fields[name]
		if !ok {
			return nil, Fail(SchemaError, []string{prefix + name}, "unknown field for %s", s.Name)
		}
		if v == nil {
			continue
		}
		cv, err := s.coerce(prefix+name, f, v)
		if err != nil {
			return nil, err
		}
		if IsEmpty(cv) {
			continue
		}
		out[name] = cv
	}
	return out, nil
}

// Coerce converts a single value for the named field to its canonical form.
// A nil value is returned unchanged.
func (s *Schema) Coerce(name string, v interface{}) (interface{}, error) {
	f, ok := s.fields[name]
	if !ok {
		return nil, Fail(SchemaError, []string{name}, "unknown field for %s", s.Name)
	}
	if v == nil {
		return nil, nil
	}
	return s.coerce(name, f, v)
}

func mismatch(path string, f Field, v interface{}) *Failure {
	return Fail(SchemaError, []string{path}, "expected %s, got %T", f.Type, v)
}

func (s *Schema) coerce(path string, f Field, v interface{}) (interface{}, error) {
	switch f.Type {
	case TypeString:
		if sv, ok := v.(string); ok {
			return sv, nil
		}
	case TypeUUID:
		if sv, ok := v.(string); ok {
			return coerceUUID(path, sv)
		}
	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			if t == "" {
				return time.Time{}, nil
			}
			pt, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, Fail(SchemaError, []string{path}, "invalid timestamp %q", t)
			}
			return pt.UTC(), nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case TypeStrings, TypeUUIDs:
		items, ok := toSlice(v)
		if !ok {
			break
		}
		out := make([]string, 0, len(items))
		for i, it := range items {
			sv, ok := it.(string)
			if !ok {
				return nil, Fail(SchemaError, []string{fmt.Sprintf("%s[%d]", path, i)}, "expected string, got %T", it)
			}
			if f.Type == TypeUUIDs {
				u, err := coerceUUID(fmt.Sprintf("%s[%d]", path, i), sv)
				if err != nil {
					return nil, err
				}
				sv = u
			}
			out = append(out, sv)
		}
		return out, nil
	case TypeStringMap:
		switch m := v.(type) {
		case map[string]string:
			return CloneValue(m), nil
		case map[string]interface{}:
			out := make(map[string]string, len(m))
			for k, it := range m {
				sv, ok := it.(string)
				if !ok {
					return nil, Fail(SchemaError, []string{path + "." + k}, "expected string, got %T", it)
				}
				out[k] = sv
			}
			return out, nil
		}
	case TypeObject:
		if m, ok := v.(map[string]interface{}); ok {
			return f.Elem.hydrate(path+".", m)
		}
	case TypeObjects:
		items, ok := toObjects(v)
		if !ok {
			break
		}
		out := make([]map[string]interface{}, 0, len(items))
		for i, it := range items {
			m, ok := it.(map[string]interface{})
			if !ok {
				return nil, Fail(SchemaError, []string{fmt.Sprintf("%s[%d]", path, i)}, "expected object, got %T", it)
			}
			h, err := f.Elem.hydrate(fmt.Sprintf("%s[%d].", path, i), m)
			if err != nil {
				return nil, err
			}
			out = append(out, h)
		}
		return out, nil
	}
	return nil, mismatch(path, f, v)
}

func coerceUUID(path, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", Fail(SchemaError, []string{path}, "invalid uuid %q", s)
	}
	return u.String(), nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toObjects(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}
