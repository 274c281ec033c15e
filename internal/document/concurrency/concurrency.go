// Package concurrency implements the field-level optimistic lock: a patch is
// accepted only if every field the client observed still holds the observed
// value.
package concurrency

import (
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mailcore/mailcore/internal/document"
)

var compareOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
}

// Equal reports whether two canonical values are the same for conflict
// detection. Absent, empty and zero scalar values compare equal.
func Equal(a, b interface{}) bool {
	if zero(a) && zero(b) {
		return true
	}
	return cmp.Equal(a, b, compareOpts)
}

func zero(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return !t
	case int64:
		return t == 0
	}
	return document.IsEmpty(v)
}

// Mismatches returns the sorted names of snapshot fields whose value differs
// from the persisted document. Fields absent from the snapshot are ignored.
func Mismatches(snapshot map[string]interface{}, current *document.Document) []string {
	var out []string
	for name, want := range snapshot {
		var have interface{}
		if current != nil {
			have = current.Fields[name]
		}
		if !Equal(want, have) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Check rejects the snapshot with StaleState when it no longer matches.
func Check(snapshot map[string]interface{}, current *document.Document) error {
	stale := Mismatches(snapshot, current)
	if len(stale) == 0 {
		return nil
	}
	return document.Fail(document.StaleState, stale, "current_state no longer matches the stored document")
}
