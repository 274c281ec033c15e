package consistency

import (
	"context"
	"strings"

	"github.com/mailcore/mailcore/internal/document"
)

// contactPoints are the contact sequences whose elements carry an id and a
// primary flag.
var contactPoints = []string{"addresses", "emails", "ims", "phones", "organizations"}

// ContactValidator keeps contact-point sequences coherent and the contact
// identifiable.
type ContactValidator struct{}

func (ContactValidator) Validate(ctx context.Context, req *Request) (*document.Document, error) {
	next := req.Next
	for _, name := range contactPoints {
		if err := checkSequence(name, next.Objects(name)); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{"identities", "public_keys"} {
		f, _ := document.ContactSchema.Field(name)
		if err := checkIDs(name, f.Elem.IDField, next.Objects(name)); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(next.String("given_name")) == "" &&
		strings.TrimSpace(next.String("family_name")) == "" &&
		!hasAddress(next.Objects("emails")) {
		return nil, document.Fail(document.EmptyContact, []string{"emails", "family_name", "given_name"},
			"a contact needs a name or an email address")
	}
	return next, nil
}

func checkSequence(name string, items []map[string]interface{}) error {
	f, _ := document.ContactSchema.Field(name)
	if err := checkIDs(name, f.Elem.IDField, items); err != nil {
		return err
	}
	primaries := 0
	for _, it := range items {
		if p, _ := it["is_primary"].(bool); p {
			primaries++
		}
	}
	if primaries > 1 {
		return document.Fail(document.ConflictingPrimary, []string{name}, "%d elements are marked primary", primaries)
	}
	return nil
}

func checkIDs(name, idField string, items []map[string]interface{}) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id, _ := it[idField].(string)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return document.Fail(document.ConflictingPrimary, []string{name}, "duplicate %s %s", idField, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func hasAddress(emails []map[string]interface{}) bool {
	for _, e := range emails {
		if a, _ := e["address"].(string); strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}
