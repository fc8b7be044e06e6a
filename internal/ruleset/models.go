package ruleset

import (
	"time"

	"rulegov/internal/approval"
)

// RuleSet groups rules for joint deployment. Version is the optimistic-lock
// counter for the row itself.
type RuleSet struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	CurrentVersion int       `json:"current_version"`
	Version        int       `json:"version"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	SetActive   = "ACTIVE"
	SetInactive = "INACTIVE"
)

// RuleSetVersion snapshots the member rules at one point in time.
type RuleSetVersion struct {
	ID         string                   `json:"id"`
	RuleSetID  string                   `json:"rule_set_id"`
	Version    int                      `json:"version"`
	RuleIDs    []string                 `json:"rule_ids"`
	Status     approval.LifecycleStatus `json:"status"`
	CreatedBy  string                   `json:"created_by"`
	CreatedAt  time.Time                `json:"created_at"`
	ApprovedBy *string                  `json:"approved_by,omitempty"`
	ApprovedAt *time.Time               `json:"approved_at,omitempty"`
}

type CreateRuleSetRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	RuleIDs     []string `json:"rule_ids" binding:"required"`
}

type CreateRuleSetVersionRequest struct {
	RuleIDs            []string `json:"rule_ids" binding:"required"`
	ExpectedSetVersion *int     `json:"expected_set_version"`
}

type CreateRuleSetResult struct {
	RuleSet        *RuleSet        `json:"rule_set"`
	RuleSetVersion *RuleSetVersion `json:"rule_set_version"`
}
