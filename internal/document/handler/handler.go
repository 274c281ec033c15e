// Package handler exposes the document operations over HTTP.
package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mailcore/mailcore/internal/document"
	"github.com/mailcore/mailcore/internal/document/service"
	"github.com/mailcore/mailcore/pkg/logger"
	"github.com/mailcore/mailcore/pkg/middleware"
)

// Handler serves messages and contacts for the authenticated user.
type Handler struct {
	svc service.Service
	// MaxUpload bounds attachment size in bytes.
	MaxUpload int64
}

func New(svc service.Service) *Handler {
	return &Handler{svc: svc, MaxUpload: 25 << 20}
}

// Register mounts the routes on rg. rg must run AuthMiddleware.
func (h *Handler) Register(rg *gin.RouterGroup) {
	for _, k := range []struct {
		path string
		kind document.Kind
	}{
		{"/messages", document.KindMessage},
		{"/contacts", document.KindContact},
	} {
		g := rg.Group(k.path)
		g.POST("", h.create(k.kind, k.path))
		g.GET("/:id", h.get(k.kind))
		g.PATCH("/:id", h.patch(k.kind))
		g.DELETE("/:id", h.delete(k.kind))
	}
	rg.POST("/messages/:id/attachments", h.addAttachment)
	rg.GET("/messages/:id/attachments/:sub_id", h.downloadAttachment)
	rg.DELETE("/messages/:id/attachments/:sub_id", h.deleteAttachment)
	rg.POST("/contacts/:id/:collection", h.addElement)
	rg.DELETE("/contacts/:id/:collection/:sub_id", h.deleteElement)
}

func (h *Handler) create(kind document.Kind, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		opts, ok := applyOptions(c)
		if !ok {
			return
		}
		raw := map[string]interface{}{}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&raw); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": document.MalformedPatch})
				return
			}
		}
		d, err := h.svc.Create(c.Request.Context(), user, kind, raw, opts)
		if err != nil {
			fail(c, err)
			return
		}
		s, _ := document.Lookup(kind)
		location := c.FullPath()
		if location == "" {
			location = path
		}
		c.Header("Location", location+"/"+d.ID)
		c.JSON(http.StatusCreated, gin.H{s.IDField: d.ID, "location": location + "/" + d.ID})
	}
}

func (h *Handler) get(kind document.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		d, err := h.svc.Get(c.Request.Context(), user, kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, document.Project(d, document.ProjectOptions{PreferHTML: c.Query("body_type") == "html"}))
	}
}

func (h *Handler) patch(kind document.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		opts, ok := applyOptions(c)
		if !ok {
			return
		}
		var raw map[string]interface{}
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": document.MalformedPatch})
			return
		}
		if _, err := h.svc.Apply(c.Request.Context(), user, kind, c.Param("id"), raw, opts); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) delete(kind document.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if err := h.svc.Delete(c.Request.Context(), user, kind, c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) addAttachment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart file", "kind": document.MalformedPatch})
		return
	}
	if h.MaxUpload > 0 && fh.Size > h.MaxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": document.MalformedPatch})
		return
	}
	defer f.Close()

	inline, _ := strconv.ParseBool(c.PostForm("is_inline"))
	el, err := h.svc.AddAttachment(c.Request.Context(), user, c.Param("id"), service.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Inline:      inline,
		Body:        f,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, el)
}

func (h *Handler) downloadAttachment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	meta, rc, err := h.svc.OpenAttachment(c.Request.Context(), user, c.Param("id"), c.Param("sub_id"))
	if err != nil {
		fail(c, err)
		return
	}
	defer rc.Close()

	name, _ := meta["file_name"].(string)
	contentType, _ := meta["content_type"].(string)
	size, _ := meta["size"].(int64)
	disposition := "attachment"
	if inline, _ := meta["is_inline"].(bool); inline {
		disposition = "inline"
	}
	c.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": name}),
	})
}

func (h *Handler) deleteAttachment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteAttachment(c.Request.Context(), user, c.Param("id"), c.Param("sub_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addElement(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	add, _, ok := service.CollectionOps(document.KindContact, c.Param("collection"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection " + c.Param("collection")})
		return
	}
	opts, ok := applyOptions(c)
	if !ok {
		return
	}
	var params map[string]interface{}
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": document.MalformedPatch})
		return
	}
	el, err := h.svc.SubOp(c.Request.Context(), user, document.KindContact, c.Param("id"), add, params, opts)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, el)
}

func (h *Handler) deleteElement(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	_, del, ok := service.CollectionOps(document.KindContact, c.Param("collection"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection " + c.Param("collection")})
		return
	}
	opts, ok := applyOptions(c)
	if !ok {
		return
	}
	params := map[string]interface{}{"id": c.Param("sub_id")}
	if _, err := h.svc.SubOp(c.Request.Context(), user, document.KindContact, c.Param("id"), del, params, opts); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func currentUser(c *gin.Context) (string, bool) {
	user, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return user, ok
}

func applyOptions(c *gin.Context) (service.ApplyOptions, bool) {
	opts := service.ApplyOptions{BodyType: c.Query("body_type")}
	if v := c.Query("wait_for_index"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wait_for_index must be a boolean", "kind": document.MalformedPatch})
			return opts, false
		}
		opts.WaitForIndex = b
	}
	return opts, true
}

// StatusOf maps a pipeline failure onto an HTTP status.
func StatusOf(err error) int {
	switch document.KindOf(err) {
	case document.MalformedPatch, document.SchemaError:
		return http.StatusBadRequest
	case document.NoSenderIdentity, document.AmbiguousBody, document.DanglingReference,
		document.NotDraft, document.ConflictingPrimary, document.EmptyContact:
		return http.StatusUnprocessableEntity
	case document.StaleState:
		return http.StatusConflict
	case document.NotFound:
		return http.StatusNotFound
	case document.BackendUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := StatusOf(err)
	var f *document.Failure
	if !errors.As(err, &f) {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "backend unavailable", "kind": f.Kind})
		return
	}
	msg := f.Message
	if msg == "" {
		msg = string(f.Kind)
	}
	fields := f.Fields
	if fields == nil {
		fields = []string{}
	}
	c.JSON(status, gin.H{"error": msg, "kind": f.Kind, "fields": fields})
}
