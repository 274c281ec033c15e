package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/mailcore/mailcore/internal/document/repository"
	"github.com/mailcore/mailcore/internal/index"
	"github.com/mailcore/mailcore/pkg/logger"
	"github.com/mailcore/mailcore/pkg/metrics"
)

// Reconciler re-derives index projections from the primary store.
type Reconciler struct {
	Queue    Queue
	Repo     repository.Repository
	Index    index.Index
	Interval time.Duration
	Batch    int
}

// Once processes one batch of pending entries and returns how many were
// repaired.
func (r *Reconciler) Once(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	entries, err := r.Queue.Pending(ctx, batch)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, e := range entries {
		if err := r.repair(ctx, e); err != nil {
			logger.Warnf("reconcile %s %s (attempt %d): %v", e.Kind, e.DocID, e.Attempts+1, err)
			metrics.Reconciled.WithLabelValues("failed").Inc()
			if rerr := r.Queue.Record(ctx, e.Kind, e.UserID, e.DocID, err); rerr != nil {
				return fixed, rerr
			}
			continue
		}
		if err := r.Queue.Done(ctx, e.Kind, e.DocID); err != nil {
			return fixed, err
		}
		metrics.Reconciled.WithLabelValues("ok").Inc()
		fixed++
	}
	return fixed, nil
}

func (r *Reconciler) repair(ctx context.Context, e Entry) error {
	d, err := r.Repo.Get(ctx, e.Kind, e.UserID, e.DocID)
	if errors.Is(err, repository.ErrNotFound) {
		return r.Index.Delete(ctx, e.Kind, e.UserID, e.DocID)
	}
	if err != nil {
		return err
	}
	return r.Index.Upsert(ctx, d, true)
}

// Run calls Once every Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.Once(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Errorf("reconcile batch: %v", err)
			}
			if n > 0 {
				logger.Infof("reconciled %d index entries", n)
			}
		}
	}
}
