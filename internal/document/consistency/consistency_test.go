package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/models"
)

const (
	user      = "user-1"
	identity  = "9d7c2a3e-5a37-4f43-8c43-0d3f0e7b6a11"
	alias     = "1f0a2b3c-4d5e-4f60-8a7b-9c0d1e2f3a4b"
	parent    = "3a1c3c3d-8f6e-4d6b-9a56-1a8b64f8e8c1"
	otherDisc = "77a0b9e8-2c8b-4d9b-8f0e-7d7e7e3c2b10"
	disc      = "5e8f3a2b-6c1d-4e7f-9a0b-1c2d3e4f5a6b"
)

type fakeIdentities map[string][]models.LocalIdentity

func (f fakeIdentities) Identities(ctx context.Context, userID string) ([]models.LocalIdentity, error) {
	return f[userID], nil
}

type fakeRefs struct {
	messages    map[string]Reference // owned by user
	discussions map[string]bool
	err         error
}

func (f *fakeRefs) ResolveMessage(ctx context.Context, userID, id string) (Reference, bool, error) {
	if f.err != nil {
		return Reference{}, false, f.err
	}
	if userID != user {
		return Reference{}, false, nil
	}
	r, ok := f.messages[id]
	return r, ok, nil
}

func (f *fakeRefs) ResolveDiscussion(ctx context.Context, userID, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return userID == user && f.discussions[id], nil
}

func newRegistry(refs *fakeRefs) Registry {
	ids := fakeIdentities{user: {
		{IdentityID: identity, Address: "a@x", Protocol: "email", DisplayName: "A"},
		{IdentityID: alias, Address: "alias@x", Protocol: "email"},
	}, "intruder": {
		{IdentityID: "b5c3a1d2-0e9f-4a8b-9c7d-6e5f4a3b2c1d", Address: "a@x"},
	}}
	if refs == nil {
		refs = &fakeRefs{
			messages:    map[string]Reference{parent: {ID: parent, DiscussionID: disc}},
			discussions: map[string]bool{disc: true, otherDisc: true},
		}
	}
	return NewRegistry(ids, refs)
}

func draft(fields map[string]interface{}) *document.Document {
	base := map[string]interface{}{
		"is_draft":   true,
		"subject":    "Hi",
		"body_plain": "hello",
		"participants": []map[string]interface{}{
			{"type": "From", "address": "a@x"},
			{"type": "To", "address": "b@y"},
		},
	}
	for k, v := range fields {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return &document.Document{ID: "m1", UserID: user, Kind: document.KindMessage, Fields: base}
}

func validate(t *testing.T, r Registry, d *document.Document) (*document.Document, error) {
	t.Helper()
	return r.Validate(context.Background(), &Request{UserID: user, Current: d, Next: d})
}

func TestDraftAccepted(t *testing.T) {
	r := newRegistry(nil)
	out, err := validate(t, r, draft(map[string]interface{}{
		"parent_id":       parent,
		"discussion_id":   disc,
		"user_identities": []string{identity},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Hi", out.String("subject"))

	_, err = validate(t, r, draft(map[string]interface{}{
		"participants": []map[string]interface{}{{"type": "sender", "address": "ALIAS@x"}},
	}))
	require.NoError(t, err)
}

func TestDraftRules(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]interface{}
		want   error
	}{
		{"not a draft", map[string]interface{}{"is_draft": false}, document.ErrNotDraft},
		{"both bodies", map[string]interface{}{"body_html": "<p>x</p>"}, document.ErrAmbiguousBody},
		{"no sender", map[string]interface{}{"participants": []map[string]interface{}{{"type": "To", "address": "b@y"}}}, document.ErrNoSenderIdentity},
		{"two senders", map[string]interface{}{"participants": []map[string]interface{}{
			{"type": "From", "address": "a@x"}, {"type": "From", "address": "alias@x"},
		}}, document.ErrNoSenderIdentity},
		{"foreign sender", map[string]interface{}{"participants": []map[string]interface{}{{"type": "From", "address": "z@z"}}}, document.ErrNoSenderIdentity},
		{"two identities", map[string]interface{}{"user_identities": []string{identity, alias}}, document.ErrNoSenderIdentity},
		{"identity mismatch", map[string]interface{}{"user_identities": []string{alias}}, document.ErrNoSenderIdentity},
		{"unknown identity", map[string]interface{}{"user_identities": []string{disc}}, document.ErrNoSenderIdentity},
		{"dangling parent", map[string]interface{}{"parent_id": "00000000-0000-4000-8000-000000000000"}, document.ErrDanglingReference},
		{"dangling discussion", map[string]interface{}{"discussion_id": "00000000-0000-4000-8000-000000000000"}, document.ErrDanglingReference},
		{"parent in other discussion", map[string]interface{}{"parent_id": parent, "discussion_id": otherDisc}, document.ErrDanglingReference},
	}
	r := newRegistry(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validate(t, r, draft(tc.fields))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDraftParentOwnedByOtherUser(t *testing.T) {
	r := newRegistry(nil)
	d := draft(map[string]interface{}{"parent_id": parent})
	_, err := r.Validate(context.Background(), &Request{UserID: "intruder", Current: d, Next: d})
	require.True(t, errors.Is(err, document.ErrDanglingReference), "got %v", err)

	_, err = r.Validate(context.Background(), &Request{UserID: user, Current: d, Next: d})
	require.NoError(t, err)
}

func TestDraftResolverFailureIsUnavailable(t *testing.T) {
	r := newRegistry(&fakeRefs{err: errors.New("mongo down")})
	_, err := validate(t, r, draft(map[string]interface{}{"parent_id": parent}))
	require.True(t, errors.Is(err, document.ErrBackendUnavailable))
}

func TestDraftCreationAddsSender(t *testing.T) {
	r := newRegistry(nil)
	d := draft(map[string]interface{}{"participants": []map[string]interface{}{{"type": "To", "address": "b@y"}}})
	out, err := r.Validate(context.Background(), &Request{UserID: user, Next: d})
	require.NoError(t, err)
	ps := out.Objects("participants")
	require.Len(t, ps, 2)
	assert.Equal(t, "a@x", ps[0]["address"])
	assert.Equal(t, "From", ps[0]["type"])
	assert.Equal(t, "A", ps[0]["label"])
	assert.Equal(t, []string{identity}, out.Strings("user_identities"))
	assert.Len(t, d.Objects("participants"), 1, "input document untouched")
}

func contact(fields map[string]interface{}) *document.Document {
	return &document.Document{ID: "c1", UserID: user, Kind: document.KindContact, Fields: fields}
}

func TestContactRules(t *testing.T) {
	r := newRegistry(nil)

	_, err := validate(t, r, contact(map[string]interface{}{
		"given_name": "Ada",
		"emails": []map[string]interface{}{
			{"email_id": "e1", "address": "a@x", "is_primary": true},
			{"email_id": "e2", "address": "b@x"},
		},
	}))
	require.NoError(t, err)

	_, err = validate(t, r, contact(map[string]interface{}{
		"emails": []map[string]interface{}{{"email_id": "e1", "address": "a@x"}},
	}))
	require.NoError(t, err, "an email is enough")

	_, err = validate(t, r, contact(map[string]interface{}{
		"given_name": "Ada",
		"phones": []map[string]interface{}{
			{"phone_id": "p1", "number": "1", "is_primary": true},
			{"phone_id": "p2", "number": "2", "is_primary": true},
		},
	}))
	assert.True(t, errors.Is(err, document.ErrConflictingPrimary))

	_, err = validate(t, r, contact(map[string]interface{}{
		"given_name": "Ada",
		"public_keys": []map[string]interface{}{
			{"key_id": "k1", "name": "a"},
			{"key_id": "k1", "name": "b"},
		},
	}))
	assert.True(t, errors.Is(err, document.ErrConflictingPrimary))

	_, err = validate(t, r, contact(map[string]interface{}{"title": "Dr"}))
	assert.True(t, errors.Is(err, document.ErrEmptyContact))
}
