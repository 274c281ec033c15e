package consistency

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/models"
)

// DraftValidator enforces the draft rules: a coherent sender identity, a
// single body variant and owned parent/discussion references.
type DraftValidator struct {
	Identities IdentityRegistry
	References ReferenceResolver
}

type draftLookups struct {
	identities      []models.LocalIdentity
	parent          Reference
	parentFound     bool
	discussionFound bool
	parentID        string
	discussionID    string
}

func (v *DraftValidator) Validate(ctx context.Context, req *Request) (*document.Document, error) {
	next := req.Next.Clone()
	if !next.IsDraft() {
		return nil, document.Fail(document.NotDraft, nil, "message %s is not a draft", next.ID)
	}
	if next.String("body_plain") != "" && next.String("body_html") != "" {
		return nil, document.Fail(document.AmbiguousBody, []string{"body_html", "body_plain"}, "both body variants are set")
	}

	look, err := v.lookup(ctx, req.UserID, next)
	if err != nil {
		return nil, err
	}

	if req.Creating() && len(senders(next)) == 0 && len(look.identities) > 0 {
		addDefaultSender(next, look.identities[0])
	}
	if err := checkSender(next, look.identities); err != nil {
		return nil, err
	}
	if err := checkReferences(look); err != nil {
		return nil, err
	}
	return next, nil
}

// lookup resolves identities and references concurrently.
func (v *DraftValidator) lookup(ctx context.Context, userID string, d *document.Document) (*draftLookups, error) {
	look := &draftLookups{
		parentID:     d.String("parent_id"),
		discussionID: d.String("discussion_id"),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := v.Identities.Identities(gctx, userID)
		if err != nil {
			return document.Unavailable("resolve identities", err)
		}
		look.identities = ids
		return nil
	})
	if look.parentID != "" {
		g.Go(func() error {
			ref, found, err := v.References.ResolveMessage(gctx, userID, look.parentID)
			if err != nil {
				return document.Unavailable("resolve parent", err)
			}
			look.parent, look.parentFound = ref, found
			return nil
		})
	}
	if look.discussionID != "" {
		g.Go(func() error {
			found, err := v.References.ResolveDiscussion(gctx, userID, look.discussionID)
			if err != nil {
				return document.Unavailable("resolve discussion", err)
			}
			look.discussionFound = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return look, nil
}

func senders(d *document.Document) []map[string]interface{} {
	var out []map[string]interface{}
	for _, p := range d.Objects("participants") {
		role, _ := p["type"].(string)
		if document.IsSenderRole(role) {
			out = append(out, p)
		}
	}
	return out
}

func addDefaultSender(d *document.Document, id models.LocalIdentity) {
	sender := map[string]interface{}{
		"address": id.Address,
		"type":    document.RoleFrom,
	}
	if id.Protocol != "" {
		sender["protocol"] = id.Protocol
	}
	if id.DisplayName != "" {
		sender["label"] = id.DisplayName
	}
	d.Fields["participants"] = append([]map[string]interface{}{sender}, d.Objects("participants")...)
	if len(d.Strings("user_identities")) == 0 {
		d.Fields["user_identities"] = []string{id.IdentityID}
	}
}

func checkSender(d *document.Document, identities []models.LocalIdentity) error {
	from := senders(d)
	switch len(from) {
	case 0:
		return document.Fail(document.NoSenderIdentity, []string{"participants"}, "draft has no sender participant")
	case 1:
	default:
		return document.Fail(document.NoSenderIdentity, []string{"participants"}, "draft has %d sender participants", len(from))
	}
	address, _ := from[0]["address"].(string)
	var matched *models.LocalIdentity
	for i := range identities {
		if strings.EqualFold(identities[i].Address, strings.TrimSpace(address)) {
			matched = &identities[i]
			break
		}
	}
	if matched == nil {
		return document.Fail(document.NoSenderIdentity, []string{"participants"}, "sender %q is not one of the user's identities", address)
	}

	selected := d.Strings("user_identities")
	if len(selected) == 0 {
		return nil
	}
	if len(selected) != 1 {
		return document.Fail(document.NoSenderIdentity, []string{"user_identities"}, "a draft must use exactly one identity, got %d", len(selected))
	}
	for _, id := range identities {
		if id.IdentityID != selected[0] {
			continue
		}
		if !strings.EqualFold(id.Address, matched.Address) {
			return document.Fail(document.NoSenderIdentity, []string{"participants", "user_identities"},
				"identity %s does not match sender %q", selected[0], address)
		}
		return nil
	}
	return document.Fail(document.NoSenderIdentity, []string{"user_identities"}, "identity %s does not belong to the user", selected[0])
}

func checkReferences(look *draftLookups) error {
	if look.parentID != "" && !look.parentFound {
		return document.Fail(document.DanglingReference, []string{"parent_id"}, "parent message %s not found", look.parentID)
	}
	if look.discussionID != "" && !look.discussionFound {
		return document.Fail(document.DanglingReference, []string{"discussion_id"}, "discussion %s not found", look.discussionID)
	}
	if look.parentID != "" && look.discussionID != "" && look.parent.DiscussionID != "" &&
		look.parent.DiscussionID != look.discussionID {
		return document.Fail(document.DanglingReference, []string{"discussion_id", "parent_id"},
			"parent belongs to discussion %s", look.parent.DiscussionID)
	}
	return nil
}
