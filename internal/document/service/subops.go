package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/patch"
)

// SubOpFunc turns the current document and request parameters into a
// normalized patch. The returned element is the one added or removed.
type SubOpFunc func(cur *document.Document, params map[string]interface{}) (*patch.Patch, map[string]interface{}, error)

// sequences maps a collection path segment to the element name used in
// operation names, per kind.
var sequences = map[document.Kind]map[string]string{
	document.KindContact: {
		"emails":        "email",
		"addresses":     "address",
		"ims":           "im",
		"phones":        "phone",
		"organizations": "organization",
		"identities":    "identity",
		"public_keys":   "public_key",
	},
	document.KindMessage: {
		"attachments": "attachment",
	},
}

func subOperations() map[document.Kind]map[string]SubOpFunc {
	out := make(map[document.Kind]map[string]SubOpFunc, len(sequences))
	for kind, cols := range sequences {
		ops := make(map[string]SubOpFunc, 2*len(cols))
		for field, name := range cols {
			ops["add_"+name] = addElement(kind, field)
			ops["delete_"+name] = removeElement(kind, field)
		}
		out[kind] = ops
	}
	return out
}

// CollectionOps returns the add and delete operation names for a
// collection path segment such as "emails".
func CollectionOps(kind document.Kind, collection string) (add, del string, ok bool) {
	name, ok := sequences[kind][strings.ToLower(collection)]
	if !ok {
		return "", "", false
	}
	return "add_" + name, "delete_" + name, true
}

// SubOp dispatches a named sub-object operation through the patch pipeline.
// Delete operations take the element id under "id".
func (e *Engine) SubOp(ctx context.Context, userID string, kind document.Kind, id, op string, params map[string]interface{}, opts ApplyOptions) (elem map[string]interface{}, err error) {
	defer func() { observe(kind, err) }()
	fn, ok := e.subOps[kind][op]
	if !ok {
		return nil, document.Fail(document.MalformedPatch, nil, "unknown operation %q for %s", op, kind)
	}
	_, err = e.run(ctx, userID, kind, id, opts.WaitForIndex, func(cur *document.Document) (*patch.Patch, error) {
		p, el, err := fn(cur, params)
		elem = el
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return elem, nil
}

func sequenceSchema(kind document.Kind, field string) *document.Schema {
	s, err := document.Lookup(kind)
	if err != nil {
		panic(err)
	}
	f, ok := s.Field(field)
	if !ok || f.Type != document.TypeObjects {
		panic("no object sequence " + field + " in " + string(kind))
	}
	return f.Elem
}

// pin snapshots the sequence as read so a concurrent edit of the same
// sequence is reported as stale instead of being overwritten.
func pin(kind document.Kind, cur *document.Document, field string) *patch.Patch {
	return &patch.Patch{
		Kind:     kind,
		Set:      map[string]interface{}{},
		Unset:    map[string]struct{}{},
		Snapshot: map[string]interface{}{field: document.CloneValue(cur.Fields[field])},
	}
}

func addElement(kind document.Kind, field string) SubOpFunc {
	elemSchema := sequenceSchema(kind, field)
	return func(cur *document.Document, params map[string]interface{}) (*patch.Patch, map[string]interface{}, error) {
		el, err := elemSchema.HydrateFields(params)
		if err != nil {
			return nil, nil, err
		}
		if len(el) == 0 {
			return nil, nil, document.Fail(document.MalformedPatch, []string{field}, "empty %s", elemSchema.Name)
		}
		if s, _ := el[elemSchema.IDField].(string); s == "" {
			el[elemSchema.IDField] = uuid.NewString()
		}

		items := document.CloneValue(cur.Objects(field)).([]map[string]interface{})
		// a new primary demotes the previous one
		if primary, _ := el["is_primary"].(bool); primary {
			for _, it := range items {
				delete(it, "is_primary")
			}
		}
		items = append(items, el)

		p := pin(kind, cur, field)
		p.Set[field] = items
		return p, document.CloneFields(el), nil
	}
}

func removeElement(kind document.Kind, field string) SubOpFunc {
	elemSchema := sequenceSchema(kind, field)
	return func(cur *document.Document, params map[string]interface{}) (*patch.Patch, map[string]interface{}, error) {
		target, _ := params["id"].(string)
		if target == "" {
			return nil, nil, document.Fail(document.MalformedPatch, []string{field}, "missing %s id", elemSchema.Name)
		}
		var (
			rest    []map[string]interface{}
			removed map[string]interface{}
		)
		for _, it := range cur.Objects(field) {
			if id, _ := it[elemSchema.IDField].(string); removed == nil && strings.EqualFold(id, target) {
				removed = it
				continue
			}
			rest = append(rest, it)
		}
		if removed == nil {
			return nil, nil, document.Fail(document.NotFound, []string{field}, "%s %s not found", elemSchema.Name, target)
		}

		p := pin(kind, cur, field)
		if len(rest) == 0 {
			p.Unset[field] = struct{}{}
		} else {
			p.Set[field] = document.CloneValue(rest)
		}
		return p, document.CloneFields(removed), nil
	}
}
