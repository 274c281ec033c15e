package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mailcore/mailcore/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	AddIdentity(ctx context.Context, sub string, id models.LocalIdentity) error
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

// UpsertBySub refreshes profile fields. Identities are only seeded when the
// user document is first inserted.
func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	filter := bson.M{"sub": u.Sub}
	update := bson.M{
		"$set": bson.M{
			"email":     u.Email,
			"name":      u.Name,
			"updatedAt": u.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"createdAt":  u.CreatedAt,
			"identities": u.Identities,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return u, nil
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"sub": sub}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) AddIdentity(ctx context.Context, sub string, id models.LocalIdentity) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"sub": sub, "identities.address": bson.M{"$ne": id.Address}},
		bson.M{"$push": bson.M{"identities": id}},
	)
	return err
}

// MemoryUserRepository keeps users in process memory. Used by tests and when
// no MongoDB is configured.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := r.users[u.Sub]
	if !ok {
		cp := *u
		cp.ID = u.Sub
		cp.CreatedAt = now
		cp.Identities = append([]models.LocalIdentity(nil), u.Identities...)
		cur = &cp
		r.users[u.Sub] = cur
	}
	cur.Email = u.Email
	cur.Name = u.Name
	cur.UpdatedAt = now
	out := *cur
	out.Identities = append([]models.LocalIdentity(nil), cur.Identities...)
	return &out, nil
}

func (r *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[sub]
	if !ok {
		return nil, nil
	}
	out := *u
	out.Identities = append([]models.LocalIdentity(nil), u.Identities...)
	return &out, nil
}

func (r *MemoryUserRepository) AddIdentity(ctx context.Context, sub string, id models.LocalIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sub]
	if !ok {
		u = &models.User{ID: sub, Sub: sub, CreatedAt: time.Now().UTC()}
		r.users[sub] = u
	}
	for _, cur := range u.Identities {
		if strings.EqualFold(cur.Address, id.Address) {
			return nil
		}
	}
	u.Identities = append(u.Identities, id)
	return nil
}
