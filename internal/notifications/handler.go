package notifications

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"equity-portal/grant-ledger-backend/internal/auth"
)

type Handler struct {
	service *Service
	upgrade func(c *gin.Context, userID uuid.UUID) error
}

func NewHandler(service *Service, upgrade func(c *gin.Context, userID uuid.UUID) error) *Handler {
	return &Handler{service: service, upgrade: upgrade}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.List)
	rg.POST("/notifications/:id/read", h.MarkRead)
	rg.GET("/ws", h.Connect)
}

func (h *Handler) List(c *gin.Context) {
	out, err := h.service.ListForUser(c.Request.Context(), auth.Subject(c), 50, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), id, auth.Subject(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (h *Handler) Connect(c *gin.Context) {
	if h.upgrade == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}
	if err := h.upgrade(c, auth.Subject(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}
