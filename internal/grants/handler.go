package grants

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"equity-portal/grant-ledger-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	grants := rg.Group("/grants")
	{
		grants.POST("", auth.RequireRole(auth.RoleIssuer), h.Issue)
		grants.GET("", h.List)
		grants.GET("/:id", h.Get)
		grants.GET("/:id/position", h.Position)
		grants.GET("/:id/quote", h.Quote)
		grants.GET("/:id/events", h.Events)
		grants.POST("/:id/exercise", h.Exercise)
		grants.POST("/:id/terminate", auth.RequireRole(auth.RoleAdmin), h.Terminate)
		grants.POST("/:id/burn", h.Burn)

		grants.POST("/:id/transfer-approval", auth.RequireRole(auth.RoleAdmin), h.ApproveTransfer)
		grants.DELETE("/:id/transfer-approval", auth.RequireRole(auth.RoleAdmin), h.RevokeTransferApproval)
		grants.GET("/:id/transfer-approval", h.PendingApproval)
		grants.POST("/:id/transfer", h.ExecuteTransfer)
	}

	admin := rg.Group("/ledger", auth.RequireRole(auth.RoleAdmin))
	{
		admin.PUT("/treasury", h.UpdateTreasury)
		admin.POST("/pause", h.Pause)
		admin.POST("/resume", h.Resume)
	}
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.service.IssueGrant(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) List(c *gin.Context) {
	out, err := h.service.ListGrants(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	g, err := h.service.GetGrant(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) Position(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	pos, err := h.service.Position(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (h *Handler) Quote(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	amount, err := strconv.ParseUint(c.Query("amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	cost, err := h.service.QuoteExerciseCost(c.Request.Context(), id, amount, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grant_id": id, "amount": amount, "cost": cost.String()})
}

func (h *Handler) Events(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	events, err := h.service.Events(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type exerciseRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) Exercise(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	var req exerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.service.Exercise(c.Request.Context(), id, req.Amount, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) Terminate(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	if err := h.service.Terminate(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}

func (h *Handler) Burn(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	if err := h.service.Burn(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "burned"})
}

type transferApprovalRequest struct {
	Destination uuid.UUID `json:"destination"`
}

func (h *Handler) ApproveTransfer(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	var req transferApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ApproveTransfer(c.Request.Context(), id, req.Destination, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *Handler) RevokeTransferApproval(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	if err := h.service.RevokeTransferApproval(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *Handler) PendingApproval(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	approval, err := h.service.PendingApproval(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

func (h *Handler) ExecuteTransfer(c *gin.Context) {
	id, ok := grantID(c)
	if !ok {
		return
	}
	var req transferApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ExecuteApprovedTransfer(c.Request.Context(), id, req.Destination, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

type treasuryRequest struct {
	Treasury uuid.UUID `json:"treasury"`
}

func (h *Handler) UpdateTreasury(c *gin.Context) {
	var req treasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdateTreasury(c.Request.Context(), req.Treasury, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) Pause(c *gin.Context) {
	if err := h.service.PauseExercise(c.Request.Context(), actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (h *Handler) Resume(c *gin.Context) {
	if err := h.service.ResumeExercise(c.Request.Context(), actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:    auth.Subject(c),
		Admin: auth.HasRole(c, auth.RoleAdmin),
	}
}

func grantID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		insufficient *InsufficientExercisableError
		blocked      *TransferBlockedError
		mismatch     *DestinationMismatchError
	)
	switch {
	case errors.Is(err, ErrGrantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoPendingApproval):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNilIdentity),
		errors.Is(err, ErrInvalidTerms):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyTerminated),
		errors.Is(err, ErrGrantExpired),
		errors.Is(err, ErrNothingExercisable),
		errors.Is(err, ErrNotBurnable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrExercisePaused),
		errors.Is(err, ErrReentrantCall):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &insufficient),
		errors.As(err, &mismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &blocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
