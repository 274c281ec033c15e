package repository

import (
	"context"
	"sync"

	"github.com/mailcore/mailcore/internal/document"
)

type key struct {
	kind document.Kind
	id   string
}

// MemoryRepo is an in-memory repository used for unit tests and for running
// without MongoDB. Stored documents are copied on the way in and out.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[key]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[key]*document.Document)}
}

func (m *MemoryRepo) Get(ctx context.Context, kind document.Kind, userID, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[key{kind, id}]
	if !ok || d.UserID != userID {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *MemoryRepo) Insert(ctx context.Context, d *document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{d.Kind, d.ID}
	if _, ok := m.store[k]; ok {
		return ErrExists
	}
	d.Revision = 1
	m.store[k] = d.Clone()
	return nil
}

func (m *MemoryRepo) ConditionalPut(ctx context.Context, d *document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{d.Kind, d.ID}
	cur, ok := m.store[k]
	if !ok || cur.UserID != d.UserID {
		return ErrNotFound
	}
	if cur.Revision != d.Revision {
		return ErrConflict
	}
	d.Revision++
	m.store[k] = d.Clone()
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, kind document.Kind, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{kind, id}
	cur, ok := m.store[k]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(m.store, k)
	return nil
}

func (m *MemoryRepo) HasDiscussion(ctx context.Context, userID, discussionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, d := range m.store {
		if k.kind == document.KindMessage && d.UserID == userID && d.String("discussion_id") == discussionID {
			return true, nil
		}
	}
	return false, nil
}
