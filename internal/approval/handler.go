package approval

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rulegov/internal/auth"
	"rulegov/internal/constants"
	"rulegov/internal/logger"
	"rulegov/pkg/errors"
	"rulegov/pkg/logging"
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
	submit := auth.RequireCapability(auth.CapApprovalsSubmit)
	decide := auth.RequireCapability(auth.CapApprovalsDecide)
	read := auth.RequireCapability(auth.CapRulesRead)

	group.POST("/rule-versions/:id/submit", submit, h.entityAction(EntityRuleVersion, h.submit))
	group.POST("/rule-versions/:id/approve", decide, h.entityAction(EntityRuleVersion, h.approve))
	group.POST("/rule-versions/:id/reject", decide, h.entityAction(EntityRuleVersion, h.reject))
	group.POST("/rule-set-versions/:id/submit", submit, h.entityAction(EntityRuleSetVersion, h.submit))
	group.POST("/rule-set-versions/:id/approve", decide, h.entityAction(EntityRuleSetVersion, h.approve))
	group.POST("/rule-set-versions/:id/reject", decide, h.entityAction(EntityRuleSetVersion, h.reject))
	group.GET("/approvals", read, h.ListApprovals)
}

func (h *Handler) entityAction(entityType EntityType, fn func(*gin.Context, EntityType)) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn(c, entityType)
	}
}

// submit godoc
// @Summary      Submit a version for approval
// @Description  Moves a DRAFT or REJECTED version to PENDING_APPROVAL and opens an approval ticket
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "Version ID"
// @Param        request  body  SubmitRequest  false  "Idempotency key and remarks"
// @Success      200  {object}  SubmitResult
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /rule-versions/{id}/submit [post]
func (h *Handler) submit(c *gin.Context, entityType EntityType) {
	var req SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
			return
		}
	}

	result, err := h.service.Submit(c.Request.Context(), entityType, c.Param("id"), h.principal(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// approve godoc
// @Summary      Approve a pending version
// @Description  Decides the pending ticket and moves the version to APPROVED; the checker must differ from the maker
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path  string           true   "Version ID"
// @Param        request  body  DecisionRequest  false  "Reviewer remarks"
// @Success      200  {object}  Approval
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /rule-versions/{id}/approve [post]
func (h *Handler) approve(c *gin.Context, entityType EntityType) {
	h.decide(c, entityType, h.service.Approve)
}

// reject godoc
// @Summary      Reject a pending version
// @Description  Decides the pending ticket and moves the version to REJECTED; the checker must differ from the maker
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path  string           true   "Version ID"
// @Param        request  body  DecisionRequest  false  "Reviewer remarks"
// @Success      200  {object}  Approval
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /rule-versions/{id}/reject [post]
func (h *Handler) reject(c *gin.Context, entityType EntityType) {
	h.decide(c, entityType, h.service.Reject)
}

func (h *Handler) decide(c *gin.Context, entityType EntityType, fn func(ctx context.Context, entityType EntityType, entityID, checker string, req DecisionRequest) (*Approval, error)) {
	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
			return
		}
	}

	approval, err := fn(c.Request.Context(), entityType, c.Param("id"), h.principal(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

// ListApprovals godoc
// @Summary      List approval tickets
// @Description  Keyset-paginated approvals, newest first
// @Tags         approvals
// @Produce      json
// @Param        cursor       query  string  false  "Opaque page cursor"
// @Param        limit        query  int     false  "Page size (clamped to 100)"
// @Param        direction    query  string  false  "next or prev"
// @Param        entity_type  query  string  false  "Filter by entity type"
// @Param        entity_id    query  string  false  "Filter by entity ID"
// @Param        status       query  string  false  "Filter by ticket status"
// @Success      200  {object}  pagination.Page[Approval]
// @Failure      422  {object}  map[string]interface{}
// @Router       /approvals [get]
func (h *Handler) ListApprovals(c *gin.Context) {
	p, err := pagination.ParseParams(
		c.Query("cursor"), c.Query("limit"), c.Query("direction"),
		constants.DefaultListLimit, constants.MaxListLimit,
	)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filter := Filter{
		EntityType: EntityType(c.Query("entity_type")),
		EntityID:   c.Query("entity_id"),
		Status:     TicketStatus(c.Query("status")),
	}

	page, err := h.service.ListApprovals(c.Request.Context(), filter, p)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) principal(c *gin.Context) string {
	return logging.GetPrincipal(c.Request.Context())
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}
