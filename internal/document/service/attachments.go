package service

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/storage"
	"github.com/mailcore/mailcore/pkg/logger"
)

// Upload is attachment content sent with a draft.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Inline      bool
	Body        io.Reader
}

// AddAttachment stores the content in object storage and appends its
// metadata to the draft. The object is removed again if the patch is
// refused.
func (e *Engine) AddAttachment(ctx context.Context, userID, messageID string, upload Upload) (map[string]interface{}, error) {
	if _, err := e.fetch(ctx, document.KindMessage, userID, messageID); err != nil {
		return nil, err
	}
	aid := uuid.NewString()
	key := attachmentKey(userID, messageID, aid)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj := storage.Object{Key: key, Name: upload.FileName, ContentType: contentType, Size: upload.Size, Body: upload.Body}
	if err := e.objects.Put(ctx, obj); err != nil {
		return nil, document.Unavailable("upload attachment", err)
	}

	params := map[string]interface{}{
		"attachment_id": aid,
		"file_name":     upload.FileName,
		"content_type":  contentType,
		"size":          upload.Size,
		"url":           key,
		"is_inline":     upload.Inline,
	}
	el, err := e.SubOp(ctx, userID, document.KindMessage, messageID, "add_attachment", params, ApplyOptions{})
	if err != nil {
		if rerr := e.objects.Remove(context.WithoutCancel(ctx), key); rerr != nil {
			logger.Warnf("remove orphan attachment %s: %v", key, rerr)
		}
		return nil, err
	}
	return el, nil
}

// DeleteAttachment drops the attachment from the draft, then its content.
func (e *Engine) DeleteAttachment(ctx context.Context, userID, messageID, attachmentID string) error {
	el, err := e.SubOp(ctx, userID, document.KindMessage, messageID, "delete_attachment", map[string]interface{}{"id": attachmentID}, ApplyOptions{})
	if err != nil {
		return err
	}
	aid, _ := el["attachment_id"].(string)
	if err := e.objects.Remove(ctx, attachmentKey(userID, messageID, aid)); err != nil {
		logger.Warnf("remove attachment %s of %s: %v", aid, messageID, err)
	}
	return nil
}

// OpenAttachment returns the attachment metadata and its content. The
// caller closes the reader.
func (e *Engine) OpenAttachment(ctx context.Context, userID, messageID, attachmentID string) (map[string]interface{}, io.ReadCloser, error) {
	cur, err := e.fetch(ctx, document.KindMessage, userID, messageID)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range cur.Objects("attachments") {
		if a["attachment_id"] != attachmentID {
			continue
		}
		rc, err := e.objects.Open(ctx, attachmentKey(userID, messageID, attachmentID))
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, document.Fail(document.NotFound, []string{"attachments"}, "content of attachment %s is missing", attachmentID)
		}
		if err != nil {
			return nil, nil, document.Unavailable("open attachment", err)
		}
		return a, rc, nil
	}
	return nil, nil, document.Fail(document.NotFound, []string{"attachments"}, "attachment %s not found", attachmentID)
}
