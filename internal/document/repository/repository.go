// Package repository is the primary store of mutable documents.
package repository

import (
	"context"
	"errors"

	"github.com/mailcore/mailcore/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict reports that the stored revision moved since the read the
	// write was computed from.
	ErrConflict = errors.New("document revision changed")
	ErrExists   = errors.New("document already exists")
)

// Repository is the authoritative store. Every lookup is scoped to the
// owning user; a document of another user is reported as not found.
type Repository interface {
	Get(ctx context.Context, kind document.Kind, userID, id string) (*document.Document, error)
	// Insert stores a new document at revision 1.
	Insert(ctx context.Context, d *document.Document) error
	// ConditionalPut replaces the stored document only if its revision still
	// equals d.Revision; on success d.Revision is advanced.
	ConditionalPut(ctx context.Context, d *document.Document) error
	Delete(ctx context.Context, kind document.Kind, userID, id string) error
	// HasDiscussion reports whether the user owns a message in the discussion.
	HasDiscussion(ctx context.Context, userID, discussionID string) (bool, error)
}
