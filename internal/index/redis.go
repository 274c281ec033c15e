package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/redis/go-redis/v9"

	"github.com/mailcore/mailcore/internal/document"
)

const (
	revisionField = "_revision"
	ownerField    = "_owner"
	deletedField  = "_deleted"
	maxWatchTries = 5
)

// RedisIndex stores each projection as a hash under "<prefix><kind>:<id>",
// one JSON-encoded value per field. Upserts only touch the fields that
// changed and never replace a projection built from a newer revision. A
// deleted document leaves a tombstone hash for TombstoneTTL so that late
// upserts cannot bring it back.
type RedisIndex struct {
	client       *redis.Client
	prefix       string
	TombstoneTTL time.Duration
}

// NewRedisIndex creates a Redis-backed index. Prefix may be empty.
func NewRedisIndex(client *redis.Client, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "index:"
	}
	return &RedisIndex{client: client, prefix: prefix, TombstoneTTL: DefaultTombstoneTTL}
}

func (r *RedisIndex) key(kind document.Kind, id string) string {
	return r.prefix + string(kind) + ":" + id
}

// Upsert diffs the stored projection against the new one and writes the
// difference in a MULTI/EXEC transaction under WATCH, so the revision check
// and the write are atomic. A Redis hash is visible as soon as EXEC returns,
// so refresh needs no extra step.
func (r *RedisIndex) Upsert(ctx context.Context, d *document.Document, refresh bool) error {
	next, err := json.Marshal(Projection(d))
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}
	var nextFields map[string]json.RawMessage
	if err := json.Unmarshal(next, &nextFields); err != nil {
		return err
	}
	key := r.key(d.Kind, d.ID)

	txf := func(tx *redis.Tx) error {
		stored, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if _, gone := stored[deletedField]; gone {
			return nil
		}
		if rev, ok := stored[revisionField]; ok {
			if n, err := strconv.ParseInt(rev, 10, 64); err == nil && n > d.Revision {
				return nil
			}
		}
		changes, err := diff(stored, next)
		if err != nil {
			return err
		}
		set := []interface{}{revisionField, d.Revision, ownerField, d.UserID}
		var del []string
		for f, raw := range changes {
			if string(raw) == "null" {
				del = append(del, f)
				continue
			}
			set = append(set, f, string(nextFields[f]))
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, set...)
			if len(del) > 0 {
				p.HDel(ctx, key, del...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchTries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return err
}

// diff returns the top-level fields of the merge patch turning the stored
// projection into next.
func diff(stored map[string]string, next []byte) (map[string]json.RawMessage, error) {
	prev := make(map[string]json.RawMessage, len(stored))
	for f, v := range stored {
		if strings.HasPrefix(f, "_") {
			continue
		}
		prev[f] = json.RawMessage(v)
	}
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(prevJSON, next)
	if err != nil {
		return nil, fmt.Errorf("diff projection: %w", err)
	}
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// Delete replaces the projection with a tombstone.
func (r *RedisIndex) Delete(ctx context.Context, kind document.Kind, userID, id string) error {
	key := r.key(kind, id)
	ttl := r.TombstoneTTL
	if ttl <= 0 {
		ttl = DefaultTombstoneTTL
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, deletedField, 1, ownerField, userID)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// Get decodes the stored projection back into canonical values.
func (r *RedisIndex) Get(ctx context.Context, kind document.Kind, id string) (map[string]interface{}, int64, error) {
	stored, err := r.client.HGetAll(ctx, r.key(kind, id)).Result()
	if err != nil {
		return nil, 0, err
	}
	if _, gone := stored[deletedField]; gone || len(stored) == 0 {
		return nil, 0, ErrNotIndexed
	}
	rev, _ := strconv.ParseInt(stored[revisionField], 10, 64)
	raw := make(map[string]interface{}, len(stored))
	for f, v := range stored {
		if strings.HasPrefix(f, "_") {
			continue
		}
		var val interface{}
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return nil, 0, fmt.Errorf("decode indexed field %s: %w", f, err)
		}
		raw[f] = val
	}
	s, err := document.Lookup(kind)
	if err != nil {
		return nil, 0, err
	}
	fields, err := s.HydrateFields(raw)
	if err != nil {
		return nil, 0, err
	}
	return fields, rev, nil
}
