// Package index maintains the search-index projection of documents. The
// index is secondary: it may lag the primary store and is repaired by the
// reconciler.
package index

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mailcore/mailcore/internal/document"
)

var ErrNotIndexed = errors.New("document not indexed")

// DefaultTombstoneTTL is how long a deleted document keeps refusing
// upserts. It must exceed the longest background index write.
const DefaultTombstoneTTL = time.Hour

// Index is the search-index collaborator.
type Index interface {
	// Upsert writes the projection of d. With refresh set the new projection
	// is visible to readers as a whole before Upsert returns. Upserts older
	// than the indexed revision, or of a deleted document, are dropped.
	Upsert(ctx context.Context, d *document.Document, refresh bool) error
	// Delete removes the projection and leaves a tombstone.
	Delete(ctx context.Context, kind document.Kind, userID, id string) error
	// Get returns the indexed projection and the revision it was built from.
	Get(ctx context.Context, kind document.Kind, id string) (map[string]interface{}, int64, error)
}

// Projection is the indexed form of a document: its canonical fields with
// both body variants kept.
func Projection(d *document.Document) map[string]interface{} {
	return document.Project(d, document.ProjectOptions{Raw: true})
}

type memEntry struct {
	userID   string
	revision int64
	fields   map[string]interface{}
	deleted  bool
}

// MemoryIndex is an in-process index for tests and single-node runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memEntry)}
}

func memKey(kind document.Kind, id string) string { return string(kind) + ":" + id }

func (m *MemoryIndex) Upsert(ctx context.Context, d *document.Document, refresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(d.Kind, d.ID)
	if cur, ok := m.entries[k]; ok && (cur.deleted || cur.revision > d.Revision) {
		return nil
	}
	m.entries[k] = memEntry{userID: d.UserID, revision: d.Revision, fields: Projection(d)}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, kind document.Kind, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey(kind, id)] = memEntry{userID: userID, deleted: true}
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, kind document.Kind, id string) (map[string]interface{}, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(kind, id)]
	if !ok || e.deleted {
		return nil, 0, ErrNotIndexed
	}
	return document.CloneFields(e.fields), e.revision, nil
}
