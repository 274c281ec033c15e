package document

import (
	"sort"
)

// Kind names a mutable document kind.
type Kind string

const (
	KindMessage Kind = "message"
	KindContact Kind = "contact"
)

// FieldType is the canonical type of a field value.
type FieldType int

const (
	TypeString    FieldType = iota // string
	TypeUUID                       // canonical uuid string
	TypeTime                       // time.Time (UTC)
	TypeBool                       // bool
	TypeInt                        // int64
	TypeStrings                    // []string
	TypeUUIDs                      // []string of canonical uuids
	TypeStringMap                  // map[string]string
	TypeObject                     // map[string]interface{} described by Elem
	TypeObjects                    // []map[string]interface{} described by Elem
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeUUID:
		return "uuid"
	case TypeTime:
		return "timestamp"
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	case TypeStrings:
		return "string list"
	case TypeUUIDs:
		return "uuid list"
	case TypeStringMap:
		return "string map"
	case TypeObject:
		return "object"
	case TypeObjects:
		return "object list"
	}
	return "unknown"
}

// Sequence reports whether the type is an ordered sequence.
func (t FieldType) Sequence() bool {
	return t == TypeStrings || t == TypeUUIDs || t == TypeObjects
}

// Field describes one schema field.
type Field struct {
	Name     string
	Type     FieldType
	Writable bool
	Elem     *Schema
}

// Schema is the field set of a document kind or of a nested sub-entity.
type Schema struct {
	Name string
	// IDField is the identifier field: the document id for kinds, the element
	// id for sub-entities held in sequences.
	IDField   string
	Kind      Kind
	bodyAlias bool
	fields    map[string]Field
	order     []string
}

// NewSchema builds a schema from its fields.
func NewSchema(name, idField string, fields ...Field) *Schema {
	s := &Schema{Name: name, IDField: idField, fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	sort.Strings(s.order)
	return s
}

// Field looks a field up by canonical name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns the fields sorted by name.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.fields[n])
	}
	return out
}

// HasBodyAlias reports whether the presentation field `body` maps onto
// body_plain/body_html for this schema.
func (s *Schema) HasBodyAlias() bool { return s.bodyAlias }

// Writable returns the names of client-writable fields.
func (s *Schema) Writable() []string {
	var out []string
	for _, n := range s.order {
		if s.fields[n].Writable {
			out = append(out, n)
		}
	}
	return out
}

func str(name string, writable bool) Field  { return Field{Name: name, Type: TypeString, Writable: writable} }
func id(name string, writable bool) Field   { return Field{Name: name, Type: TypeUUID, Writable: writable} }
func ts(name string, writable bool) Field   { return Field{Name: name, Type: TypeTime, Writable: writable} }
func flag(name string, writable bool) Field { return Field{Name: name, Type: TypeBool, Writable: writable} }
func num(name string, writable bool) Field  { return Field{Name: name, Type: TypeInt, Writable: writable} }

func list(name string, elem *Schema, writable bool) Field {
	return Field{Name: name, Type: TypeObjects, Elem: elem, Writable: writable}
}

func object(name string, elem *Schema, writable bool) Field {
	return Field{Name: name, Type: TypeObject, Elem: elem, Writable: writable}
}
