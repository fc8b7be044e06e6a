package catalog

import (
	"encoding/json"
	"time"

	"rulegov/internal/approval"
	pkgerrors "rulegov/pkg/errors"
)

// RuleType classifies what a fraud rule is for.
type RuleType string

const (
	TypeAllowlist  RuleType = "ALLOWLIST"
	TypeBlocklist  RuleType = "BLOCKLIST"
	TypeAuth       RuleType = "AUTH"
	TypeMonitoring RuleType = "MONITORING"
)

// RuleAction is the outcome a matching rule produces.
type RuleAction string

const (
	ActionApprove RuleAction = "APPROVE"
	ActionDecline RuleAction = "DECLINE"
	ActionReview  RuleAction = "REVIEW"
)

type RuleStatus string

const (
	RuleActive   RuleStatus = "ACTIVE"
	RuleInactive RuleStatus = "INACTIVE"
)

var ruleTypes = map[RuleType]bool{
	TypeAllowlist:  true,
	TypeBlocklist:  true,
	TypeAuth:       true,
	TypeMonitoring: true,
}

// compatibleActions constrains which actions each rule type may carry. The
// first entry is the default when the caller omits the action.
var compatibleActions = map[RuleType][]RuleAction{
	TypeAllowlist:  {ActionApprove},
	TypeBlocklist:  {ActionDecline},
	TypeAuth:       {ActionDecline, ActionApprove},
	TypeMonitoring: {ActionReview},
}

func ValidRuleType(t RuleType) bool {
	return ruleTypes[t]
}

// DefaultAction derives the action for a rule type when none is supplied.
func DefaultAction(t RuleType) RuleAction {
	return compatibleActions[t][0]
}

// ResolveAction applies the type's default when action is empty and rejects
// incompatible combinations.
func ResolveAction(t RuleType, action RuleAction) (RuleAction, error) {
	if action == "" {
		return DefaultAction(t), nil
	}
	for _, a := range compatibleActions[t] {
		if a == action {
			return action, nil
		}
	}
	return "", pkgerrors.ErrValidation.WithDetail("message",
		"action "+string(action)+" is not compatible with rule type "+string(t))
}

// Rule is the identity row. Version is the optimistic-lock counter for the
// row itself; CurrentVersion always equals the highest version among the
// rule's versions.
type Rule struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Type           RuleType   `json:"type"`
	Status         RuleStatus `json:"status"`
	CurrentVersion int        `json:"current_version"`
	Version        int        `json:"version"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RuleVersion is an immutable snapshot once approved. Versions are 1-based
// and strictly increasing with no gaps.
type RuleVersion struct {
	ID            string                   `json:"id"`
	RuleID        string                   `json:"rule_id"`
	Version       int                      `json:"version"`
	ConditionTree json.RawMessage          `json:"condition_tree,omitempty"`
	Priority      int                      `json:"priority"`
	Action        RuleAction               `json:"action"`
	Scope         json.RawMessage          `json:"scope,omitempty"`
	Status        approval.LifecycleStatus `json:"status"`
	CreatedBy     string                   `json:"created_by"`
	CreatedAt     time.Time                `json:"created_at"`
	ApprovedBy    *string                  `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time               `json:"approved_at,omitempty"`
}

type CreateRuleRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Type          RuleType        `json:"type" binding:"required"`
	ConditionTree json.RawMessage `json:"condition_tree"`
	Priority      int             `json:"priority"`
	Action        RuleAction      `json:"action"`
	Scope         json.RawMessage `json:"scope"`
}

type CreateRuleVersionRequest struct {
	ConditionTree       json.RawMessage `json:"condition_tree" binding:"required"`
	Priority            int             `json:"priority"`
	Action              RuleAction      `json:"action"`
	Scope               json.RawMessage `json:"scope"`
	ExpectedRuleVersion *int            `json:"expected_rule_version"`
}

// RuleSummary is the listing projection: the rule plus its latest version's
// priority and action, without the condition tree.
type RuleSummary struct {
	Rule
	LatestPriority int                      `json:"latest_priority"`
	LatestAction   RuleAction               `json:"latest_action"`
	LatestStatus   approval.LifecycleStatus `json:"latest_status"`
}

// CreateRuleResult carries both rows written by create_rule.
type CreateRuleResult struct {
	Rule        *Rule        `json:"rule"`
	RuleVersion *RuleVersion `json:"rule_version"`
}

type SimulateRequest struct {
	Transaction json.RawMessage `json:"transaction" binding:"required"`
}

type SimulateResult struct {
	RuleID    string `json:"rule_id"`
	Evaluated bool   `json:"evaluated"`
	Message   string `json:"message"`
}

// Filter narrows a rule listing. Zero values match everything.
type Filter struct {
	Type   RuleType
	Status RuleStatus
}
