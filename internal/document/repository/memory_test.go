package repository

import (
	"context"
	"testing"
	"time"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryRepoConditionalPut(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := &document.Document{ID: "m1", UserID: "u1", Kind: document.KindMessage, Fields: map[string]interface{}{
		"subject":       "Hi",
		"discussion_id": "d1",
	}}
	require.NoError(t, r.Insert(ctx, d))
	require.Equal(t, int64(1), d.Revision)
	require.ErrorIs(t, r.Insert(ctx, d), ErrExists)

	got, err := r.Get(ctx, document.KindMessage, "u1", "m1")
	require.NoError(t, err)
	require.Equal(t, "Hi", got.String("subject"))

	_, err = r.Get(ctx, document.KindMessage, "u2", "m1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(ctx, document.KindContact, "u1", "m1")
	require.ErrorIs(t, err, ErrNotFound)

	// two writers computed from revision 1: only the first lands
	a, b := got.Clone(), got.Clone()
	a.Fields["subject"] = "A"
	b.Fields["subject"] = "B"
	require.NoError(t, r.ConditionalPut(ctx, a))
	require.Equal(t, int64(2), a.Revision)
	require.ErrorIs(t, r.ConditionalPut(ctx, b), ErrConflict)

	got, err = r.Get(ctx, document.KindMessage, "u1", "m1")
	require.NoError(t, err)
	require.Equal(t, "A", got.String("subject"))

	// stored copy is isolated from the caller
	a.Fields["subject"] = "mutated"
	got, _ = r.Get(ctx, document.KindMessage, "u1", "m1")
	require.Equal(t, "A", got.String("subject"))

	ok, err := r.HasDiscussion(ctx, "u1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.HasDiscussion(ctx, "u2", "d1")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, r.Delete(ctx, document.KindMessage, "u2", "m1"), ErrNotFound)
	require.NoError(t, r.Delete(ctx, document.KindMessage, "u1", "m1"))
	require.ErrorIs(t, r.ConditionalPut(ctx, got), ErrNotFound)
}

func TestDecodeNormalizesBSON(t *testing.T) {
	when := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":              "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"revision":         int64(4),
		"message_id":       "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"user_id":          "u1",
		"subject":          "Hi",
		"importance_level": int32(2),
		"date":             primitive.NewDateTimeFromTime(when),
		"tags":             primitive.A{"inbox"},
		"participants": primitive.A{
			primitive.M{"type": "From", "address": "a@x"},
			primitive.D{{Key: "type", Value: "To"}, {Key: "address", Value: "b@y"}},
		},
		"privacy_features": primitive.M{"is_spam": "false"},
	}
	d, err := decode(document.KindMessage, raw)
	require.NoError(t, err)
	require.Equal(t, int64(4), d.Revision)
	require.Equal(t, "u1", d.UserID)
	require.Equal(t, int64(2), d.Fields["importance_level"])
	require.True(t, when.Equal(d.Time("date")))
	require.Equal(t, []string{"inbox"}, d.Strings("tags"))
	require.Equal(t, "b@y", d.Objects("participants")[1]["address"])
	require.Equal(t, map[string]string{"is_spam": "false"}, d.Fields["privacy_features"])
	_, hasRev := d.Fields["revision"]
	require.False(t, hasRev)

	enc := encode(d)
	require.Equal(t, d.ID, enc["_id"])
	require.Equal(t, int64(4), enc["revision"])
}
