package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailcore/mailcore/internal/document"
)

func TestNormalizeSplitsSnapshotAndUpdates(t *testing.T) {
	p, err := Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{"subject": "Hi", "tags": []interface{}{"inbox"}},
		"subject":       "Hello",
		"parent_id":     nil,
		"is_unread":     false,
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"subject": "Hello", "is_unread": false}, p.Set)
	assert.Contains(t, p.Unset, "parent_id")
	assert.Equal(t, "Hi", p.Snapshot["subject"])
	assert.Equal(t, []string{"inbox"}, p.Snapshot["tags"], "snapshot may name read-only fields")
	assert.Equal(t, []string{"is_unread", "parent_id", "subject"}, p.Fields())
}

func TestNormalizeBodyAlias(t *testing.T) {
	p, err := Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{"body": "old"},
		"body":          "new",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "new", p.Set["body_plain"])
	assert.Contains(t, p.Unset, "body_html")
	assert.Equal(t, "old", p.Snapshot["body_plain"])
	assert.NotContains(t, p.Snapshot, "body_html")

	p, err = Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{},
		"body":          "<p>new</p>",
		"body_type":     "html",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "<p>new</p>", p.Set["body_html"])
	assert.Contains(t, p.Unset, "body_plain")

	p, err = Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{},
		"body":          "<p>new</p>",
	}, Options{BodyType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, "<p>new</p>", p.Set["body_html"])

	_, err = Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{},
		"body":          "a",
		"body_html":     "<p>b</p>",
	}, Options{})
	assert.True(t, errors.Is(err, document.ErrAmbiguousBody))

	_, err = Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{},
		"body":          "a",
		"body_type":     "markdown",
	}, Options{})
	assert.True(t, errors.Is(err, document.ErrMalformedPatch))
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name string
		kind document.Kind
		raw  map[string]interface{}
		want error
	}{
		{"missing snapshot", document.KindMessage, map[string]interface{}{"subject": "x"}, document.ErrMalformedPatch},
		{"snapshot not object", document.KindMessage, map[string]interface{}{"current_state": "x", "subject": "x"}, document.ErrMalformedPatch},
		{"unknown field", document.KindMessage, map[string]interface{}{"current_state": nil, "colour": "x"}, document.ErrMalformedPatch},
		{"unknown snapshot field", document.KindMessage, map[string]interface{}{"current_state": map[string]interface{}{"colour": "x"}, "subject": "x"}, document.ErrMalformedPatch},
		{"sequence expected", document.KindMessage, map[string]interface{}{"current_state": nil, "participants": map[string]interface{}{"address": "a@x"}}, document.ErrMalformedPatch},
		{"empty patch", document.KindMessage, map[string]interface{}{"current_state": map[string]interface{}{"subject": "x"}}, document.ErrMalformedPatch},
		{"read only", document.KindMessage, map[string]interface{}{"current_state": nil, "is_draft": false}, document.ErrSchema},
		{"type mismatch", document.KindMessage, map[string]interface{}{"current_state": nil, "subject": 4}, document.ErrSchema},
		{"bad uuid", document.KindMessage, map[string]interface{}{"current_state": nil, "parent_id": "nope"}, document.ErrSchema},
		{"contact sequence", document.KindContact, map[string]interface{}{"current_state": nil, "emails": "a@x"}, document.ErrMalformedPatch},
		{"contact read only", document.KindContact, map[string]interface{}{"current_state": nil, "contact_id": "x"}, document.ErrSchema},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.kind, tc.raw, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestNormalizeEmptyStringDeletes(t *testing.T) {
	p, err := Normalize(document.KindContact, map[string]interface{}{
		"current_state": nil,
		"title":         "",
		"given_name":    "Ada",
		"emails":        []interface{}{},
	}, Options{})
	require.NoError(t, err)
	assert.Contains(t, p.Unset, "title")
	assert.Contains(t, p.Unset, "emails")
	assert.Equal(t, "Ada", p.Set["given_name"])
	assert.Empty(t, p.Snapshot)
}

func TestApplyToLeavesOtherFields(t *testing.T) {
	d := &document.Document{Kind: document.KindMessage, Fields: map[string]interface{}{
		"subject":    "Hi",
		"body_plain": "hello",
		"parent_id":  "0b9f8c4e-3f0a-4a57-9d59-5c1f8a1c2b3d",
	}}
	p := &Patch{
		Set:   map[string]interface{}{"subject": "Hello"},
		Unset: map[string]struct{}{"parent_id": {}},
	}
	out := p.ApplyTo(d)
	assert.Equal(t, map[string]interface{}{"subject": "Hello", "body_plain": "hello"}, out.Fields)
	assert.Equal(t, "Hi", d.Fields["subject"], "source document is not mutated")
	assert.True(t, p.Touches("parent_id"))
	assert.False(t, p.Touches("body_plain"))
}

func TestNormalizeSnapshotBodyTypeFromProjection(t *testing.T) {
	p, err := Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{"body": "<p>old</p>", "body_type": "html"},
		"body":          "new",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "<p>old</p>", p.Snapshot["body_html"])
	assert.Equal(t, "new", p.Set["body_plain"])
	assert.Contains(t, p.Unset, "body_html")
}

func TestNormalizeCreate(t *testing.T) {
	fields, err := NormalizeCreate(document.KindMessage, map[string]interface{}{
		"subject": "Hi",
		"body":    "hello",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"subject": "Hi", "body_plain": "hello"}, fields)

	fields, err = NormalizeCreate(document.KindMessage, map[string]interface{}{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = NormalizeCreate(document.KindMessage, map[string]interface{}{"is_draft": false}, Options{})
	assert.True(t, errors.Is(err, document.ErrSchema))
}

func TestNormalizeEmptyReferenceInSnapshotIsNoOpinion(t *testing.T) {
	p, err := Normalize(document.KindMessage, map[string]interface{}{
		"current_state": map[string]interface{}{"parent_id": "", "subject": ""},
		"subject":       "x",
	}, Options{})
	require.NoError(t, err)
	assert.NotContains(t, p.Snapshot, "parent_id")
	assert.Contains(t, p.Snapshot, "subject")
}
