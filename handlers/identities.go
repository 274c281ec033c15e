package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailcore/mailcore/internal/models"
	"github.com/mailcore/mailcore/pkg/logger"
	"github.com/mailcore/mailcore/pkg/middleware"
)

// IdentityService is implemented by users.Service.
type IdentityService interface {
	Identities(ctx context.Context, userID string) ([]models.LocalIdentity, error)
	AddIdentity(ctx context.Context, userID, address, displayName string) (models.LocalIdentity, error)
}

// IdentityHandler lets a user manage the addresses drafts may be sent from.
type IdentityHandler struct {
	svc IdentityService
}

func NewIdentityHandler(svc IdentityService) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

// Register mounts GET and POST /identities on rg. rg must run AuthMiddleware.
func (h *IdentityHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/identities", h.list)
	rg.POST("/identities", h.add)
}

type addIdentityRequest struct {
	Address     string `json:"address" binding:"required,email"`
	DisplayName string `json:"display_name"`
}

func (h *IdentityHandler) list(c *gin.Context) {
	user, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	ids, err := h.svc.Identities(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("list identities of %s: %v", user, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
		return
	}
	if ids == nil {
		ids = []models.LocalIdentity{}
	}
	c.JSON(http.StatusOK, gin.H{"identities": ids})
}

func (h *IdentityHandler) add(c *gin.Context) {
	user, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req addIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.svc.AddIdentity(c.Request.Context(), user, req.Address, req.DisplayName)
	if err != nil {
		logger.Errorf("add identity for %s: %v", user, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
		return
	}
	c.JSON(http.StatusCreated, id)
}
