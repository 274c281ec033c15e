// Package reconcile repairs search-index projections that missed a write.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailcore/mailcore/internal/document"
)

// Entry is a document whose index projection may be stale.
type Entry struct {
	Kind      document.Kind `bson:"kind" json:"kind"`
	DocID     string        `bson:"docId" json:"docId"`
	UserID    string        `bson:"userId" json:"userId"`
	Attempts  int           `bson:"attempts" json:"attempts"`
	LastError string        `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Queue holds pending entries, at most one per document.
type Queue interface {
	Record(ctx context.Context, kind document.Kind, userID, id string, cause error) error
	Pending(ctx context.Context, limit int) ([]Entry, error)
	Done(ctx context.Context, kind document.Kind, id string) error
}

// MongoQueue persists entries in a collection keyed by kind and docId.
type MongoQueue struct {
	col *mongo.Collection
}

// NewMongoQueue ensures the unique (kind, docId) index within a bounded time.
func NewMongoQueue(ctx context.Context, col *mongo.Collection) (*MongoQueue, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	idx := mongo.IndexModel{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "docId", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("create reconcile index: %w", err)
	}
	return &MongoQueue{col: col}, nil
}

func (q *MongoQueue) Record(ctx context.Context, kind document.Kind, userID, id string, cause error) error {
	now := time.Now().UTC()
	set := bson.M{"userId": userID, "updatedAt": now}
	if cause != nil {
		set["lastError"] = cause.Error()
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
		"$inc":         bson.M{"attempts": 1},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := q.col.UpdateOne(ctx, bson.M{"kind": kind, "docId": id}, update, opts); err != nil {
		return fmt.Errorf("record reconcile entry: %w", err)
	}
	return nil
}

func (q *MongoQueue) Pending(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit))
	cur, err := q.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Entry{}
	for cur.Next(ctx) {
		var e Entry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

func (q *MongoQueue) Done(ctx context.Context, kind document.Kind, id string) error {
	_, err := q.col.DeleteOne(ctx, bson.M{"kind": kind, "docId": id})
	return err
}

// MemoryQueue is the in-process queue used by tests and single-node runs.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]*Entry)}
}

func (q *MemoryQueue) Record(ctx context.Context, kind document.Kind, userID, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now().UTC()
	k := string(kind) + ":" + id
	e, ok := q.entries[k]
	if !ok {
		e = &Entry{Kind: kind, DocID: id, CreatedAt: now}
		q.entries[k] = e
	}
	e.UserID = userID
	e.UpdatedAt = now
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	return nil
}

func (q *MemoryQueue) Pending(ctx context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Done(ctx context.Context, kind document.Kind, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, string(kind)+":"+id)
	return nil
}
