package statements

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"equity-portal/grant-ledger-backend/internal/auth"
	"equity-portal/grant-ledger-backend/internal/grants"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	st := rg.Group("/statements")
	{
		st.GET("/cap-table.csv", auth.RequireRole(auth.RoleAdmin), h.CapTableCSV)
		st.GET("/cap-table.xlsx", auth.RequireRole(auth.RoleAdmin), h.CapTableXLSX)
		st.GET("/grants/:id.pdf", h.StatementPDF)
	}
}

func (h *Handler) CapTableCSV(c *gin.Context) {
	rows, err := h.service.CapTable(c.Request.Context(), actorFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := WriteCapTableCSV(&buf, rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="cap-table.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *Handler) CapTableXLSX(c *gin.Context) {
	rows, err := h.service.CapTable(c.Request.Context(), actorFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := WriteCapTableXLSX(&buf, rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="cap-table.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) StatementPDF(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	st, err := h.service.Statement(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		if errors.Is(err, grants.ErrGrantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := WriteStatementPDF(&buf, st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="grant-statement.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func actorFrom(c *gin.Context) grants.Actor {
	return grants.Actor{
		ID:    auth.Subject(c),
		Admin: auth.HasRole(c, auth.RoleAdmin),
	}
}
