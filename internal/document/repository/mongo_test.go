package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailcore/mailcore/internal/document"
)

func TestEncodeDecodeThroughBSON(t *testing.T) {
	d, err := document.Hydrate(document.KindMessage, map[string]interface{}{
		"message_id":       "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"user_id":          "u1",
		"subject":          "Hi",
		"is_draft":         true,
		"importance_level": int64(2),
		"date":             time.Date(2024, 5, 1, 8, 0, 0, 123000000, time.UTC),
		"tags":             []string{"inbox", "work"},
		"participants": []interface{}{
			map[string]interface{}{"type": "From", "address": "a@x", "label": "A"},
			map[string]interface{}{"type": "To", "address": "b@y"},
		},
		"privacy_features": map[string]interface{}{"is_spam": "false"},
	})
	require.NoError(t, err)
	d.Revision = 7

	raw, err := bson.Marshal(encode(d))
	require.NoError(t, err)
	var stored bson.M
	require.NoError(t, bson.Unmarshal(raw, &stored))

	got, err := decode(document.KindMessage, stored)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.Revision)
	require.Equal(t, d.ID, got.ID)
	require.Equal(t, "u1", got.UserID)
	if diff := cmp.Diff(d.Fields, got.Fields); diff != "" {
		t.Fatalf("fields changed through BSON (-want +got):\n%s", diff)
	}
}

func TestNewMongoRepoReportsIndexFailure(t *testing.T) {
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(200*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(ctx) }()

	start := time.Now()
	repo, err := NewMongoRepo(ctx, client.Database("mailcore_test"))
	require.Error(t, err)
	require.Nil(t, repo)
	require.Contains(t, err.Error(), "indexes")
	require.Less(t, time.Since(start), IndexTimeout)
}
