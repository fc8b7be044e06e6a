package catalog

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

	group.POST("/rules", write, h.CreateRule)
	group.GET("/rules", read, h.ListRules)
	group.GET("/rules/:id", read, h.GetRule)
	group.GET("/rules/:id/summary", read, h.GetRuleSummary)
	group.GET("/rules/:id/versions", read, h.ListRuleVersions)
	group.POST("/rules/:id/versions", write, h.CreateRuleVersion)
	group.POST("/rules/:id/simulate", read, h.Simulate)
	group.GET("/rule-versions/:id", read, h.GetRuleVersion)
}

// CreateRule godoc
// @Summary      Create a rule
// @Description  Creates the rule identity and its first DRAFT version atomically
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        request  body  CreateRuleRequest  true  "Rule definition"
// @Success      201  {object}  CreateRuleResult
// @Failure      422  {object}  map[string]interface{}
// @Router       /rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
		return
	}

	result, err := h.service.CreateRule(c.Request.Context(), req, logging.GetPrincipal(c.Request.Context()))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateRuleVersion godoc
// @Summary      Append a rule version
// @Description  Appends the next version as DRAFT; expected_rule_version detects concurrent appends
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path  string                    true  "Rule ID"
// @Param        request  body  CreateRuleVersionRequest  true  "Version definition"
// @Success      201  {object}  RuleVersion
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]interface{}
// @Router       /rules/{id}/versions [post]
func (h *Handler) CreateRuleVersion(c *gin.Context) {
	var req CreateRuleVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
		return
	}

	version, err := h.service.CreateRuleVersion(c.Request.Context(), c.Param("id"), req, logging.GetPrincipal(c.Request.Context()))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

// GetRule godoc
// @Summary      Get a rule
// @Tags         rules
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {object}  Rule
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// GetRuleSummary godoc
// @Summary      Get a rule summary
// @Description  Rule plus its latest version's priority and action, without the condition tree
// @Tags         rules
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {object}  RuleSummary
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id}/summary [get]
func (h *Handler) GetRuleSummary(c *gin.Context) {
	summary, err := h.service.GetRuleSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListRuleVersions godoc
// @Summary      List a rule's versions
// @Tags         rules
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {array}  RuleVersion
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id}/versions [get]
func (h *Handler) ListRuleVersions(c *gin.Context) {
	versions, err := h.service.ListRuleVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GetRuleVersion godoc
// @Summary      Get a rule version
// @Tags         rules
// @Produce      json
// @Param        id  path  string  true  "Rule version ID"
// @Success      200  {object}  RuleVersion
// @Failure      404  {object}  map[string]interface{}
// @Router       /rule-versions/{id} [get]
func (h *Handler) GetRuleVersion(c *gin.Context) {
	version, err := h.service.GetRuleVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

// ListRules godoc
// @Summary      List rules
// @Description  Keyset-paginated rules, newest first
// @Tags         rules
// @Produce      json
// @Param        cursor     query  string  false  "Opaque page cursor"
// @Param        limit      query  int     false  "Page size (clamped to 100)"
// @Param        direction  query  string  false  "next or prev"
// @Param        type       query  string  false  "Filter by rule type"
// @Param        status     query  string  false  "Filter by rule status"
// @Success      200  {object}  pagination.Page[Rule]
// @Failure      422  {object}  map[string]interface{}
// @Router       /rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	p, err := pagination.ParseParams(
		c.Query("cursor"), c.Query("limit"), c.Query("direction"),
		constants.DefaultListLimit, constants.MaxListLimit,
	)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filter := Filter{
		Type:   RuleType(c.Query("type")),
		Status: RuleStatus(c.Query("status")),
	}

	page, err := h.service.ListRules(c.Request.Context(), filter, p)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Simulate godoc
// @Summary      Simulate a rule against a transaction
// @Description  Placeholder endpoint; rules are not executed by this service
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "Rule ID"
// @Param        request  body  SimulateRequest  true  "Transaction payload"
// @Success      200  {object}  SimulateResult
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id}/simulate [post]
func (h *Handler) Simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid request body"))
		return
	}

	result, err := h.service.Simulate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}
