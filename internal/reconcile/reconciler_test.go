package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/repository"
	"github.com/mailcore/mailcore/internal/index"
)

type flakyIndex struct {
	*index.MemoryIndex
	fail bool
}

func (f *flakyIndex) Upsert(ctx context.Context, d *document.Document, refresh bool) error {
	if f.fail {
		return errors.New("index down")
	}
	return f.MemoryIndex.Upsert(ctx, d, refresh)
}

func TestReconcilerRepairsAndRetries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	idx := &flakyIndex{MemoryIndex: index.NewMemoryIndex(), fail: true}
	q := NewMemoryQueue()
	r := &Reconciler{Queue: q, Repo: repo, Index: idx}

	d := &document.Document{ID: "c1", UserID: "u1", Kind: document.KindContact, Fields: map[string]interface{}{"given_name": "Ada"}}
	require.NoError(t, repo.Insert(ctx, d))
	require.NoError(t, q.Record(ctx, document.KindContact, "u1", "c1", errors.New("timeout")))

	n, err := r.Once(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempts)
	require.Equal(t, "index down", pending[0].LastError)

	idx.fail = false
	n, err = r.Once(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	fields, rev, err := idx.Get(ctx, document.KindContact, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)
	require.Equal(t, "Ada", fields["given_name"])

	pending, err = q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestReconcilerDropsDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemoryIndex()
	q := NewMemoryQueue()
	r := &Reconciler{Queue: q, Repo: repository.NewMemoryRepo(), Index: idx}

	stale := &document.Document{ID: "c9", UserID: "u1", Kind: document.KindContact, Revision: 3, Fields: map[string]interface{}{"given_name": "Old"}}
	require.NoError(t, idx.Upsert(ctx, stale, true))
	require.NoError(t, q.Record(ctx, document.KindContact, "u1", "c9", nil))

	n, err := r.Once(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, _, err = idx.Get(ctx, document.KindContact, "c9")
	require.ErrorIs(t, err, index.ErrNotIndexed)
}
