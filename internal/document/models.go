package document

import (
	"strings"
	"time"
)

// Document is the in-memory form of a stored entity. Fields holds canonical
// values keyed by schema field name; the id and owner are mirrored in Fields
// under the schema's IDField and "user_id".
type Document struct {
	ID     string
	UserID string
	Kind   Kind
	// Revision is the primary store's compare-and-set token. It is never
	// projected to clients.
	Revision int64
	Fields   map[string]interface{}
}

// Get returns a field value.
func (d *Document) Get(name string) (interface{}, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// String returns a string-typed field or "".
func (d *Document) String(name string) string {
	s, _ := d.Fields[name].(string)
	return s
}

// Bool returns a bool-typed field or false.
func (d *Document) Bool(name string) bool {
	b, _ := d.Fields[name].(bool)
	return b
}

// Time returns a timestamp field or the zero time.
func (d *Document) Time(name string) time.Time {
	t, _ := d.Fields[name].(time.Time)
	return t
}

// Objects returns an object-sequence field.
func (d *Document) Objects(name string) []map[string]interface{} {
	l, _ := d.Fields[name].([]map[string]interface{})
	return l
}

// Strings returns a string-sequence field.
func (d *Document) Strings(name string) []string {
	l, _ := d.Fields[name].([]string)
	return l
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		ID:       d.ID,
		UserID:   d.UserID,
		Kind:     d.Kind,
		Revision: d.Revision,
		Fields:   CloneFields(d.Fields),
	}
}

// IsDraft reports whether a message document is a draft.
func (d *Document) IsDraft() bool {
	return d.Kind == KindMessage && d.Bool("is_draft")
}

// CloneFields deep-copies a canonical field map.
func CloneFields(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a canonical value.
func CloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case map[string]interface{}:
		return CloneFields(t)
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(t))
		for i, m := range t {
			out[i] = CloneFields(m)
		}
		return out
	}
	return v
}

// IsEmpty reports whether a canonical value carries no information. Absent
// and empty values are interchangeable throughout the pipeline.
func IsEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	case []string:
		return len(t) == 0
	case map[string]string:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case []map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// IsSenderRole reports whether a participant type designates the sender.
func IsSenderRole(role string) bool {
	r := strings.TrimSpace(role)
	return strings.EqualFold(r, RoleFrom) || strings.EqualFold(r, "sender")
}
