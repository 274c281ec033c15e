// Package patch turns a client merge-patch payload into a normalized patch
// expressed in canonical schema field names.
package patch

import (
	"sort"
	"strings"

	"github.com/mailcore/mailcore/internal/document"
)

// Reserved payload keys.
const (
	CurrentStateKey = "current_state"
	BodyKey         = "body"
	BodyTypeKey     = "body_type"
)

// Body content types accepted as hint.
const (
	BodyPlain = "plain"
	BodyHTML  = "html"
)

// Patch is a normalized merge-patch. Set holds canonical values to write,
// Unset the fields to remove and Snapshot the client's prior observation of
// field values (used only for conflict detection).
type Patch struct {
	Kind     document.Kind
	Set      map[string]interface{}
	Unset    map[string]struct{}
	Snapshot map[string]interface{}
}

// Options tunes normalization.
type Options struct {
	// BodyType is the content-type hint for the `body` alias: "plain"
	// (default) or "html". A body_type key in the payload overrides it.
	BodyType string
}

// Fields returns every field touched by the patch, sorted.
func (p *Patch) Fields() []string {
	out := make([]string, 0, len(p.Set)+len(p.Unset))
	for k := range p.Set {
		out = append(out, k)
	}
	for k := range p.Unset {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Touches reports whether the patch writes or removes the field.
func (p *Patch) Touches(name string) bool {
	if _, ok := p.Set[name]; ok {
		return true
	}
	_, ok := p.Unset[name]
	return ok
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0
}

// ApplyTo returns a copy of d with the patch applied: every field in Set
// overwritten, every field in Unset removed, all others untouched.
func (p *Patch) ApplyTo(d *document.Document) *document.Document {
	out := d.Clone()
	if out.Fields == nil {
		out.Fields = map[string]interface{}{}
	}
	for k, v := range p.Set {
		out.Fields[k] = document.CloneValue(v)
	}
	for k := range p.Unset {
		delete(out.Fields, k)
	}
	return out
}

// Normalize parses a raw payload for the given kind. The payload must carry
// a current_state object; every other key is a field update where null (or
// "" for string and uuid fields) marks deletion.
func Normalize(kind document.Kind, raw map[string]interface{}, opts Options) (*Patch, error) {
	schema, err := document.Lookup(kind)
	if err != nil {
		return nil, document.Fail(document.MalformedPatch, nil, "%v", err)
	}
	if raw == nil {
		return nil, document.Fail(document.MalformedPatch, nil, "empty payload")
	}
	updates := copyMap(raw)

	cs, ok := updates[CurrentStateKey]
	if !ok {
		return nil, document.Fail(document.MalformedPatch, []string{CurrentStateKey}, "missing current_state")
	}
	delete(updates, CurrentStateKey)
	var rawSnapshot map[string]interface{}
	switch t := cs.(type) {
	case nil:
		rawSnapshot = map[string]interface{}{}
	case map[string]interface{}:
		rawSnapshot = copyMap(t)
	default:
		return nil, document.Fail(document.MalformedPatch, []string{CurrentStateKey}, "current_state must be an object")
	}

	bodyType, err := resolveBodyType(updates, opts)
	if err != nil {
		return nil, err
	}

	if schema.HasBodyAlias() {
		if err := resolveBodyAlias(updates, bodyType, true); err != nil {
			return nil, err
		}
		// the snapshot's body_type, as projected on read, names the variant
		// its body was taken from
		snapType := bodyType
		if _, ok := rawSnapshot[BodyTypeKey]; ok {
			if snapType, err = resolveBodyType(rawSnapshot, Options{}); err != nil {
				return nil, err
			}
		}
		if err := resolveBodyAlias(rawSnapshot, snapType, false); err != nil {
			return nil, err
		}
	}

	p := &Patch{
		Kind:     kind,
		Set:      map[string]interface{}{},
		Unset:    map[string]struct{}{},
		Snapshot: map[string]interface{}{},
	}
	if err := normalizeUpdates(schema, updates, p); err != nil {
		return nil, err
	}

	for name, v := range rawSnapshot {
		f, ok := schema.Field(name)
		if !ok {
			return nil, document.Fail(document.MalformedPatch, []string{CurrentStateKey + "." + name}, "unknown field for %s", schema.Name)
		}
		if f.Type.Sequence() && v != nil && !isSequence(v) {
			return nil, document.Fail(document.MalformedPatch, []string{CurrentStateKey + "." + name}, "%s expects a sequence", name)
		}
		// an empty reference in the snapshot means the client never saw one
		if f.Type == document.TypeUUID && v == "" {
			continue
		}
		cv, err := schema.Coerce(name, v)
		if err != nil {
			return nil, err
		}
		p.Snapshot[name] = cv
	}

	if p.Empty() {
		return nil, document.Fail(document.MalformedPatch, nil, "patch changes no field")
	}
	return p, nil
}

// NormalizeCreate maps a creation payload onto canonical writable fields.
// It applies the same alias, writability and type rules as Normalize; an
// empty payload is allowed and a current_state key is ignored.
func NormalizeCreate(kind document.Kind, raw map[string]interface{}, opts Options) (map[string]interface{}, error) {
	schema, err := document.Lookup(kind)
	if err != nil {
		return nil, document.Fail(document.MalformedPatch, nil, "%v", err)
	}
	updates := copyMap(raw)
	delete(updates, CurrentStateKey)
	bodyType, err := resolveBodyType(updates, opts)
	if err != nil {
		return nil, err
	}
	if schema.HasBodyAlias() {
		if err := resolveBodyAlias(updates, bodyType, true); err != nil {
			return nil, err
		}
	}
	p := &Patch{Kind: kind, Set: map[string]interface{}{}, Unset: map[string]struct{}{}}
	if err := normalizeUpdates(schema, updates, p); err != nil {
		return nil, err
	}
	return p.Set, nil
}

func normalizeUpdates(schema *document.Schema, updates map[string]interface{}, p *Patch) error {
	for name, v := range updates {
		f, ok := schema.Field(name)
		if !ok {
			return document.Fail(document.MalformedPatch, []string{name}, "unknown field for %s", schema.Name)
		}
		if f.Type.Sequence() && v != nil && !isSequence(v) {
			return document.Fail(document.MalformedPatch, []string{name}, "%s expects a sequence", name)
		}
		if !f.Writable {
			return document.Fail(document.SchemaError, []string{name}, "field is not writable")
		}
		cv, err := schema.Coerce(name, v)
		if err != nil {
			return err
		}
		if document.IsEmpty(cv) {
			p.Unset[name] = struct{}{}
			continue
		}
		p.Set[name] = cv
	}
	return nil
}

func resolveBodyType(updates map[string]interface{}, opts Options) (string, error) {
	bt := opts.BodyType
	if v, ok := updates[BodyTypeKey]; ok {
		delete(updates, BodyTypeKey)
		s, ok := v.(string)
		if !ok {
			return "", document.Fail(document.MalformedPatch, []string{BodyTypeKey}, "body_type must be a string")
		}
		bt = s
	}
	switch strings.ToLower(strings.TrimSpace(bt)) {
	case "", BodyPlain, "text/plain":
		return BodyPlain, nil
	case BodyHTML, "text/html":
		return BodyHTML, nil
	}
	return "", document.Fail(document.MalformedPatch, []string{BodyTypeKey}, "unsupported body type %q", bt)
}

// resolveBodyAlias rewrites `body` onto the variant selected by bodyType. For
// updates the other variant is implicitly removed; combining `body` with an
// explicit variant is ambiguous.
func resolveBodyAlias(m map[string]interface{}, bodyType string, update bool) error {
	v, ok := m[BodyKey]
	if !ok {
		return nil
	}
	delete(m, BodyKey)
	target, other := "body_plain", "body_html"
	if bodyType == BodyHTML {
		target, other = other, target
	}
	if update {
		_, hasPlain := m["body_plain"]
		_, hasHTML := m["body_html"]
		if hasPlain || hasHTML {
			return document.Fail(document.AmbiguousBody, []string{BodyKey, "body_plain", "body_html"}, "body alias combined with an explicit body field")
		}
		m[other] = nil
	}
	m[target] = v
	return nil
}

func isSequence(v interface{}) bool {
	switch v.(type) {
	case []interface{}, []string, []map[string]interface{}:
		return true
	}
	return false
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
