package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rulegov/internal/auth"
	"rulegov/internal/constants"
	"rulegov/internal/logger"
	"rulegov/pkg/errors"
	"rulegov/pkg/pagination"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/audit/logs", auth.RequireCapability(auth.CapAuditRead), h.ListAuditLogs)
}

// ListAuditLogs godoc
// @Summary      List audit log entries
// @Description  Keyset-paginated audit trail, newest first
// @Tags         audit
// @Produce      json
// @Param        cursor       query  string  false  "Opaque page cursor"
// @Param        limit        query  int     false  "Page size (clamped to 1000)"
// @Param        direction    query  string  false  "next or prev"
// @Param        entity_type  query  string  false  "Filter by entity type"
// @Param        entity_id    query  string  false  "Filter by entity ID"
// @Success      200  {object}  pagination.Page[Entry]
// @Failure      422  {object}  map[string]interface{}
// @Router       /audit/logs [get]
func (h *Handler) ListAuditLogs(c *gin.Context) {
	p, err := pagination.ParseParams(
		c.Query("cursor"), c.Query("limit"), c.Query("direction"),
		constants.DefaultListLimit, constants.MaxAuditLimit,
	)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filter := Filter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}

	page, err := h.service.ListAuditLogs(c.Request.Context(), filter, p)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}
