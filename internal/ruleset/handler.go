package ruleset

import (
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
	read := auth.RequireCapability(auth.CapRulesRead)
	write := auth.RequireCapability(auth.CapRulesWrite)

	group.POST("/rule-sets", write, h.CreateRuleSet)
	group.GET("/rule-sets", read, h.ListRuleSets)
	group.GET("/rule-sets/:id", read, h.GetRuleSet)
	group.POST("/rule-sets/:id/versions", write, h.CreateRuleSetVersion)
	group.GET("/rule-set-versions/:id", read, h.GetRuleSetVersion)
}

// CreateRuleSet godoc
// @Summary      Create a rule set
// @Description  Creates the rule set and its first DRAFT version atomically
// @Tags         rule-sets
// @Accept       json
// @Produce      json
// @Param        request  body  CreateRuleSetRequest  true  "Rule set definition"
// @Success      201  {object}  CreateRuleSetResult
// @Failure      422  {object}  map[string]interface{}
// @Router       /rule-sets [post]
func (h *Handler) CreateRuleSet(c *gin.Context) {
	var req CreateRuleSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
		return
	}

	result, err := h.service.CreateRuleSet(c.Request.Context(), req, logging.GetPrincipal(c.Request.Context()))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateRuleSetVersion godoc
// @Summary      Append a rule set version
// @Tags         rule-sets
// @Accept       json
// @Produce      json
// @Param        id       path  string                       true  "Rule set ID"
// @Param        request  body  CreateRuleSetVersionRequest  true  "Version definition"
// @Success      201  {object}  RuleSetVersion
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /rule-sets/{id}/versions [post]
func (h *Handler) CreateRuleSetVersion(c *gin.Context) {
	var req CreateRuleSetVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
		return
	}

	version, err := h.service.CreateRuleSetVersion(c.Request.Context(), c.Param("id"), req, logging.GetPrincipal(c.Request.Context()))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

// GetRuleSet godoc
// @Summary      Get a rule set
// @Tags         rule-sets
// @Produce      json
// @Param        id  path  string  true  "Rule set ID"
// @Success      200  {object}  RuleSet
// @Failure      404  {object}  map[string]interface{}
// @Router       /rule-sets/{id} [get]
func (h *Handler) GetRuleSet(c *gin.Context) {
	set, err := h.service.GetRuleSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// GetRuleSetVersion godoc
// @Summary      Get a rule set version
// @Tags         rule-sets
// @Produce      json
// @Param        id  path  string  true  "Rule set version ID"
// @Success      200  {object}  RuleSetVersion
// @Failure      404  {object}  map[string]interface{}
// @Router       /rule-set-versions/{id} [get]
func (h *Handler) GetRuleSetVersion(c *gin.Context) {
	version, err := h.service.GetRuleSetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

// ListRuleSets godoc
// @Summary      List rule sets
// @Description  Keyset-paginated rule sets, newest first
// @Tags         rule-sets
// @Produce      json
// @Param        cursor     query  string  false  "Opaque page cursor"
// @Param        limit      query  int     false  "Page size (clamped to 100)"
// @Param        direction  query  string  false  "next or prev"
// @Success      200  {object}  pagination.Page[RuleSet]
// @Failure      422  {object}  map[string]interface{}
// @Router       /rule-sets [get]
func (h *Handler) ListRuleSets(c *gin.Context) {
	p, err := pagination.ParseParams(
		c.Query("cursor"), c.Query("limit"), c.Query("direction"),
		constants.DefaultListLimit, constants.MaxListLimit,
	)
	if err != nil {
		h.handleError(c, err)
		return
	}

	page, err := h.service.ListRuleSets(c.Request.Context(), p)
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
