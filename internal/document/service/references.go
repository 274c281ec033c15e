package service

import (
	"context"
	"errors"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/consistency"
	"github.com/mailcore/mailcore/internal/document/repository"
)

// References resolves draft references against the primary store. Lookups
// are owner-scoped, so a message of another user is simply not found.
type References struct {
	Repo repository.Repository
}

func (r References) ResolveMessage(ctx context.Context, userID, messageID string) (consistency.Reference, bool, error) {
	d, err := r.Repo.Get(ctx, document.KindMessage, userID, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return consistency.Reference{}, false, nil
	}
	if err != nil {
		return consistency.Reference{}, false, err
	}
	return consistency.Reference{ID: d.ID, DiscussionID: d.String("discussion_id")}, true, nil
}

func (r References) ResolveDiscussion(ctx context.Context, userID, discussionID string) (bool, error) {
	return r.Repo.HasDiscussion(ctx, userID, discussionID)
}
