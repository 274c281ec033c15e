// Package consistency checks the domain rules of a speculative document, the
// state a patch would produce, before anything is written.
package consistency

import (
	"context"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/patch"
	"github.com/mailcore/mailcore/internal/models"
)

// IdentityRegistry resolves the sending identities of a user.
type IdentityRegistry interface {
	Identities(ctx context.Context, userID string) ([]models.LocalIdentity, error)
}

// Reference is a resolved parent message.
type Reference struct {
	ID           string
	DiscussionID string
}

// ReferenceResolver confirms that referenced entities exist and belong to
// the user. A missing or foreign entity is reported as found=false.
type ReferenceResolver interface {
	ResolveMessage(ctx context.Context, userID, messageID string) (ref Reference, found bool, err error)
	ResolveDiscussion(ctx context.Context, userID, discussionID string) (found bool, err error)
}

// Request is the input of a validation run.
type Request struct {
	UserID string
	// Current is the persisted document, nil on creation.
	Current *document.Document
	// Next is the speculative document. Validators may return an amended copy.
	Next *document.Document
	// Patch is nil on creation.
	Patch *patch.Patch
}

// Creating reports whether the request validates a new document.
func (r *Request) Creating() bool { return r.Current == nil }

// Validator checks one document kind.
type Validator interface {
	Validate(ctx context.Context, req *Request) (*document.Document, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, req *Request) (*document.Document, error)

func (f ValidatorFunc) Validate(ctx context.Context, req *Request) (*document.Document, error) {
	return f(ctx, req)
}

// Registry maps a document kind to its validator. It is built once at start
// and read concurrently afterwards.
type Registry map[document.Kind]Validator

// NewRegistry returns the validators of every registered kind.
func NewRegistry(ids IdentityRegistry, refs ReferenceResolver) Registry {
	return Registry{
		document.KindMessage: &DraftValidator{Identities: ids, References: refs},
		document.KindContact: ContactValidator{},
	}
}

// Validate runs the validator for the request's kind. Kinds without a
// validator are approved unchanged.
func (r Registry) Validate(ctx context.Context, req *Request) (*document.Document, error) {
	v, ok := r[req.Next.Kind]
	if !ok {
		return req.Next, nil
	}
	return v.Validate(ctx, req)
}
