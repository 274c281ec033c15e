package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mailcore/mailcore/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const revisionField = "revision"

// MongoRepo stores each document kind in its own collection. A stored
// record is the document's canonical fields plus `_id` (the document id) and
// `revision`, the compare-and-set token.
type MongoRepo struct {
	cols map[document.Kind]*mongo.Collection
}

// IndexTimeout bounds index creation in NewMongoRepo.
const IndexTimeout = 10 * time.Second

// NewMongoRepo uses the "messages" and "contacts" collections of db and
// ensures their secondary indexes exist.
func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	r := &MongoRepo{cols: map[document.Kind]*mongo.Collection{
		document.KindMessage: db.Collection("messages"),
		document.KindContact: db.Collection("contacts"),
	}}
	ctx, cancel := context.WithTimeout(ctx, IndexTimeout)
	defer cancel()
	// owner lookups and discussion resolution
	indexes := map[document.Kind][]mongo.IndexModel{
		document.KindMessage: {{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "discussion_id", Value: 1}}}},
		document.KindContact: {{Keys: bson.D{{Key: "user_id", Value: 1}}}},
	}
	for kind, keys := range indexes {
		if _, err := r.cols[kind].Indexes().CreateMany(ctx, keys); err != nil {
			return nil, fmt.Errorf("create %s indexes: %w", kind, err)
		}
	}
	return r, nil
}

func (m *MongoRepo) col(kind document.Kind) (*mongo.Collection, error) {
	c, ok := m.cols[kind]
	if !ok {
		return nil, fmt.Errorf("no collection for kind %q", kind)
	}
	return c, nil
}

func (m *MongoRepo) Get(ctx context.Context, kind document.Kind, userID, id string) (*document.Document, error) {
	c, err := m.col(kind)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(kind, raw)
}

func (m *MongoRepo) Insert(ctx context.Context, d *document.Document) error {
	c, err := m.col(d.Kind)
	if err != nil {
		return err
	}
	d.Revision = 1
	if _, err := c.InsertOne(ctx, encode(d)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

// ConditionalPut replaces the record matching id, owner and revision. When
// nothing matches the record is re-read to tell a missing document from a
// concurrent writer.
func (m *MongoRepo) ConditionalPut(ctx context.Context, d *document.Document) error {
	c, err := m.col(d.Kind)
	if err != nil {
		return err
	}
	expected := d.Revision
	next := d.Clone()
	next.Revision = expected + 1
	filter := bson.M{"_id": d.ID, "user_id": d.UserID, revisionField: expected}
	res, err := c.ReplaceOne(ctx, filter, encode(next))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := c.CountDocuments(ctx, bson.M{"_id": d.ID, "user_id": d.UserID}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	d.Revision = next.Revision
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, kind document.Kind, userID, id string) error {
	c, err := m.col(kind)
	if err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) HasDiscussion(ctx context.Context, userID, discussionID string) (bool, error) {
	n, err := m.cols[document.KindMessage].CountDocuments(ctx,
		bson.M{"user_id": userID, "discussion_id": discussionID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func encode(d *document.Document) bson.M {
	out := bson.M{}
	for k, v := range d.Fields {
		out[k] = v
	}
	out["_id"] = d.ID
	out["user_id"] = d.UserID
	out[revisionField] = d.Revision
	return out
}

func decode(kind document.Kind, raw bson.M) (*document.Document, error) {
	rev, _ := raw[revisionField].(int64)
	delete(raw, "_id")
	delete(raw, revisionField)
	fields, _ := normalize(map[string]interface{}(raw)).(map[string]interface{})
	d, err := document.Hydrate(kind, fields)
	if err != nil {
		return nil, fmt.Errorf("decode stored %s: %w", kind, err)
	}
	d.Revision = rev
	return d, nil
}

// normalize converts driver-specific BSON values into the plain Go shapes
// document.Hydrate accepts.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		return normalize(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, it := range t {
			out[k] = normalize(it)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, it := range t {
			out[i] = normalize(it)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	case time.Time:
		return t.UTC()
	}
	return v
}
