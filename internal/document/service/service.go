// Package service runs the merge-patch pipeline: fetch, normalize, apply,
// validate, compare against the client snapshot, then write the primary
// store and the search index.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailcore/mailcore/internal/config"
	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/concurrency"
	"github.com/mailcore/mailcore/internal/document/consistency"
	"github.com/mailcore/mailcore/internal/document/patch"
	"github.com/mailcore/mailcore/internal/document/repository"
	"github.com/mailcore/mailcore/internal/index"
	"github.com/mailcore/mailcore/internal/reconcile"
	"github.com/mailcore/mailcore/internal/storage"
	"github.com/mailcore/mailcore/pkg/logger"
	"github.com/mailcore/mailcore/pkg/metrics"
)

// Service defines the document operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, userID string, kind document.Kind, raw map[string]interface{}, opts ApplyOptions) (*document.Document, error)
	Get(ctx context.Context, userID string, kind document.Kind, id string) (*document.Document, error)
	Apply(ctx context.Context, userID string, kind document.Kind, id string, raw map[string]interface{}, opts ApplyOptions) (*document.Document, error)
	SubOp(ctx context.Context, userID string, kind document.Kind, id, op string, params map[string]interface{}, opts ApplyOptions) (map[string]interface{}, error)
	Delete(ctx context.Context, userID string, kind document.Kind, id string) error
	AddAttachment(ctx context.Context, userID, messageID string, upload Upload) (map[string]interface{}, error)
	DeleteAttachment(ctx context.Context, userID, messageID, attachmentID string) error
	OpenAttachment(ctx context.Context, userID, messageID, attachmentID string) (map[string]interface{}, io.ReadCloser, error)
}

// Options is the engine configuration.
type Options struct {
	// WaitForIndex makes every index write synchronous.
	WaitForIndex bool
	// MaxAttempts bounds the pipeline re-runs on a concurrent revision change.
	MaxAttempts  int
	IndexTimeout time.Duration
}

// OptionsFromConfig maps the loaded configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WaitForIndex: cfg.Patch.WaitForIndex,
		MaxAttempts:  cfg.Patch.MaxAttempts,
		IndexTimeout: cfg.Index.Timeout,
	}
}

// ApplyOptions are per-request options.
type ApplyOptions struct {
	// BodyType is the content-type hint for the `body` alias.
	BodyType     string
	WaitForIndex bool
}

// Deps are the engine collaborators.
type Deps struct {
	Repo       repository.Repository
	Index      index.Index
	Identities consistency.IdentityRegistry
	Queue      reconcile.Queue
	Objects    storage.ObjectStore
	// Validators defaults to consistency.NewRegistry over Identities and the
	// repository.
	Validators consistency.Registry
}

// Engine implements Service.
type Engine struct {
	repo       repository.Repository
	index      index.Index
	validators consistency.Registry
	queue      reconcile.Queue
	objects    storage.ObjectStore
	opts       Options
	subOps     map[document.Kind]map[string]SubOpFunc
	now        func() time.Time

	bg sync.WaitGroup
}

var _ Service = (*Engine)(nil)

// New builds an engine. Missing optional collaborators fall back to
// in-memory implementations.
func New(deps Deps, opts Options) *Engine {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = 5 * time.Second
	}
	e := &Engine{
		repo:       deps.Repo,
		index:      deps.Index,
		validators: deps.Validators,
		queue:      deps.Queue,
		objects:    deps.Objects,
		opts:       opts,
		subOps:     subOperations(),
		now:        time.Now,
	}
	if e.index == nil {
		e.index = index.NewMemoryIndex()
	}
	if e.queue == nil {
		e.queue = reconcile.NewMemoryQueue()
	}
	if e.objects == nil {
		e.objects = storage.NewMemoryStorage()
	}
	if e.validators == nil {
		e.validators = consistency.NewRegistry(deps.Identities, References{Repo: deps.Repo})
	}
	return e
}

// Wait blocks until background index writes have finished.
func (e *Engine) Wait() { e.bg.Wait() }

func (e *Engine) Get(ctx context.Context, userID string, kind document.Kind, id string) (*document.Document, error) {
	return e.fetch(ctx, kind, userID, id)
}

// Apply merge-patches the document with a raw client payload.
func (e *Engine) Apply(ctx context.Context, userID string, kind document.Kind, id string, raw map[string]interface{}, opts ApplyOptions) (doc *document.Document, err error) {
	defer func() { observe(kind, err) }()
	p, err := patch.Normalize(kind, raw, patch.Options{BodyType: opts.BodyType})
	if err != nil {
		return nil, err
	}
	return e.run(ctx, userID, kind, id, opts.WaitForIndex, func(*document.Document) (*patch.Patch, error) {
		return p, nil
	})
}

// Create stores a new document built from a creation payload.
func (e *Engine) Create(ctx context.Context, userID string, kind document.Kind, raw map[string]interface{}, opts ApplyOptions) (*document.Document, error) {
	fields, err := patch.NormalizeCreate(kind, raw, patch.Options{BodyType: opts.BodyType})
	if err != nil {
		return nil, err
	}
	schema, err := document.Lookup(kind)
	if err != nil {
		return nil, document.Fail(document.MalformedPatch, nil, "%v", err)
	}
	d := &document.Document{ID: uuid.NewString(), UserID: userID, Kind: kind, Fields: fields}
	now := e.stamp()
	fields[schema.IDField] = d.ID
	fields["user_id"] = userID
	fields["date_insert"] = now
	switch kind {
	case document.KindMessage:
		fields["is_draft"] = true
		fields["type"] = "email"
		if d.Time("date").IsZero() {
			fields["date"] = now
		}
	case document.KindContact:
		fields["date_update"] = now
	}
	assignElementIDs(schema, d, nil)

	approved, err := e.validators.Validate(ctx, &consistency.Request{UserID: userID, Next: d})
	if err != nil {
		return nil, err
	}
	if err := e.repo.Insert(ctx, approved); err != nil {
		return nil, document.Unavailable("insert "+string(kind), err)
	}
	logger.With("kind", kind, "id", approved.ID, "user", userID).Debugf("created")
	e.writeIndex(ctx, approved, true)
	return approved, nil
}

// Delete removes the document from the primary store, then from the index,
// then its attachment content.
func (e *Engine) Delete(ctx context.Context, userID string, kind document.Kind, id string) error {
	cur, err := e.fetch(ctx, kind, userID, id)
	if err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, kind, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return document.Fail(document.NotFound, nil, "%s %s not found", kind, id)
		}
		return document.Unavailable("delete "+string(kind), err)
	}

	ictx, cancel := context.WithTimeout(ctx, e.opts.IndexTimeout)
	defer cancel()
	if err := e.index.Delete(ictx, kind, userID, id); err != nil {
		e.indexFailed(ctx, cur, "delete", err)
	}
	if kind == document.KindMessage && len(cur.Objects("attachments")) > 0 {
		if err := e.objects.RemovePrefix(ctx, attachmentKey(userID, id, "")); err != nil {
			logger.Warnf("remove attachments of %s: %v", id, err)
		}
	}
	return nil
}

// buildFunc derives the normalized patch from the freshly fetched document.
type buildFunc func(cur *document.Document) (*patch.Patch, error)

// run is the fetch, apply, validate, compare, write loop. A conditional
// write that loses a race re-runs the whole sequence against the new state.
func (e *Engine) run(ctx context.Context, userID string, kind document.Kind, id string, wait bool, build buildFunc) (*document.Document, error) {
	schema, err := document.Lookup(kind)
	if err != nil {
		return nil, document.Fail(document.MalformedPatch, nil, "%v", err)
	}
	for attempt := 1; ; attempt++ {
		cur, err := e.fetch(ctx, kind, userID, id)
		if err != nil {
			return nil, err
		}
		p, err := build(cur)
		if err != nil {
			return nil, err
		}

		next := p.ApplyTo(cur)
		if _, ok := schema.Field("date_update"); ok {
			next.Fields["date_update"] = e.stamp()
		}
		assignElementIDs(schema, next, p)

		approved, err := e.validators.Validate(ctx, &consistency.Request{UserID: userID, Current: cur, Next: next, Patch: p})
		if err != nil {
			return nil, err
		}
		if err := concurrency.Check(p.Snapshot, cur); err != nil {
			return nil, err
		}

		approved.Revision = cur.Revision
		err = e.repo.ConditionalPut(ctx, approved)
		switch {
		case err == nil:
			logger.With("kind", kind, "id", id, "revision", approved.Revision, "fields", p.Fields()).Debugf("patched")
			e.writeIndex(ctx, approved, wait)
			return approved, nil
		case errors.Is(err, repository.ErrConflict):
			if attempt >= e.opts.MaxAttempts {
				return nil, document.Fail(document.StaleState, p.Fields(), "%s %s changed concurrently, gave up after %d attempts", kind, id, attempt)
			}
			metrics.PatchRetries.WithLabelValues(string(kind)).Inc()
		case errors.Is(err, repository.ErrNotFound):
			return nil, document.Fail(document.NotFound, nil, "%s %s not found", kind, id)
		default:
			return nil, document.Unavailable("write "+string(kind), err)
		}
	}
}

func (e *Engine) fetch(ctx context.Context, kind document.Kind, userID, id string) (*document.Document, error) {
	d, err := e.repo.Get(ctx, kind, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, document.Fail(document.NotFound, nil, "%s %s not found", kind, id)
		}
		return nil, document.Unavailable("fetch "+string(kind), err)
	}
	return d, nil
}

// writeIndex propagates d to the search index. The primary write already
// succeeded, so failures are only logged and queued for reconciliation.
func (e *Engine) writeIndex(ctx context.Context, d *document.Document, wait bool) {
	if wait || e.opts.WaitForIndex {
		ictx, cancel := context.WithTimeout(ctx, e.opts.IndexTimeout)
		defer cancel()
		if err := e.index.Upsert(ictx, d, true); err != nil {
			e.indexFailed(ctx, d, "upsert", err)
		}
		return
	}
	d = d.Clone()
	detached := context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ictx, cancel := context.WithTimeout(detached, e.opts.IndexTimeout)
		defer cancel()
		if err := e.index.Upsert(ictx, d, false); err != nil {
			e.indexFailed(detached, d, "upsert", err)
		}
	}()
}

func (e *Engine) indexFailed(ctx context.Context, d *document.Document, op string, cause error) {
	metrics.IndexFailures.WithLabelValues(string(d.Kind), op).Inc()
	logger.With("kind", d.Kind, "id", d.ID, "revision", d.Revision).Warnf("index %s failed: %v", op, cause)
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.IndexTimeout)
	defer cancel()
	if err := e.queue.Record(qctx, d.Kind, d.UserID, d.ID, cause); err != nil {
		logger.Errorf("record reconcile entry for %s %s: %v", d.Kind, d.ID, err)
	}
}

// stamp is the current time at the precision the stores keep.
func (e *Engine) stamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// assignElementIDs gives every element of an identified sequence an id. Only
// sequences the patch touches are considered; a nil patch means all.
func assignElementIDs(schema *document.Schema, d *document.Document, p *patch.Patch) {
	for _, f := range schema.Fields() {
		if f.Type != document.TypeObjects || f.Elem.IDField == "" {
			continue
		}
		if p != nil && !p.Touches(f.Name) {
			continue
		}
		for _, el := range d.Objects(f.Name) {
			if s, _ := el[f.Elem.IDField].(string); s == "" {
				el[f.Elem.IDField] = uuid.NewString()
			}
		}
	}
}

func observe(kind document.Kind, err error) {
	result := "ok"
	if err != nil {
		result = string(document.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.PatchResults.WithLabelValues(string(kind), result).Inc()
}

func attachmentKey(userID, messageID, attachmentID string) string {
	return fmt.Sprintf("%s/%s/%s", userID, messageID, attachmentID)
}
