package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"rulegov/internal/approval"
	"rulegov/internal/audit"
	"rulegov/internal/database"
	"rulegov/internal/logger"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/metrics"
	"rulegov/pkg/pagination"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest, createdBy string) (*CreateRuleResult, error)
	CreateRuleVersion(ctx context.Context, ruleID string, req CreateRuleVersionRequest, createdBy string) (*RuleVersion, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	GetRuleSummary(ctx context.Context, id string) (*RuleSummary, error)
	GetRuleVersion(ctx context.Context, id string) (*RuleVersion, error)
	ListRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error)
	ListRules(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Rule], error)
	Simulate(ctx context.Context, ruleID string, req SimulateRequest) (*SimulateResult, error)
}

type service struct {
	db      *sql.DB
	repo    Repository
	auditor *audit.Recorder
	logger  logger.Logger
}

func NewService(db *sql.DB, repo Repository, auditor *audit.Recorder, log logger.Logger) Service {
	return &service{db: db, repo: repo, auditor: auditor, logger: log}
}

const auditEntityRule = "RULE"
const auditEntityRuleVersion = "RULE_VERSION"

func (s *service) CreateRule(ctx context.Context, req CreateRuleRequest, createdBy string) (*CreateRuleResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "name is required")
	}
	if !ValidRuleType(req.Type) {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "type must be one of ALLOWLIST, BLOCKLIST, AUTH, MONITORING")
	}
	action, err := ResolveAction(req.Type, req.Action)
	if err != nil {
		return nil, err
	}
	if len(req.ConditionTree) > 0 {
		if err := ValidateConditionTree(req.ConditionTree); err != nil {
			return nil, err
		}
	}

	rule := &Rule{
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		Status:         RuleActive,
		CurrentVersion: 1,
		Version:        1,
		CreatedBy:      createdBy,
	}

	var version *RuleVersion
	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.repo.InsertRule(ctx, tx, rule); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		version = &RuleVersion{
			RuleID:        rule.ID,
			Version:       1,
			ConditionTree: req.ConditionTree,
			Priority:      req.Priority,
			Action:        action,
			Scope:         req.Scope,
			Status:        approval.StatusDraft,
			CreatedBy:     createdBy,
		}
		if err := s.repo.InsertVersion(ctx, tx, version); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		newValue, err := json.Marshal(rule)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		entry := audit.Entry{
			EntityType:  auditEntityRule,
			EntityID:    rule.ID,
			Action:      audit.ActionCreate,
			NewValue:    newValue,
			PerformedBy: createdBy,
		}
		if err := s.auditor.Record(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		return nil
	})
	if txErr != nil {
		if _, ok := database.UniqueViolation(txErr); ok {
			return nil, pkgerrors.ErrConflict.WithCause(txErr).WithDetail("message", "a rule with this name already exists")
		}
		return nil, txErr
	}

	metrics.RuleMutationsTotal.WithLabelValues("create", string(rule.Type)).Inc()
	metrics.RuleVersionsCreatedTotal.WithLabelValues(string(rule.Type)).Inc()
	s.logger.InfowCtx(ctx, "Rule created", "rule_id", rule.ID, "type", rule.Type)

	return &CreateRuleResult{Rule: rule, RuleVersion: version}, nil
}

func (s *service) CreateRuleVersion(ctx context.Context, ruleID string, req CreateRuleVersionRequest, createdBy string) (*RuleVersion, error) {
	if len(req.ConditionTree) == 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "condition_tree is required")
	}
	if err := ValidateConditionTree(req.ConditionTree); err != nil {
		return nil, err
	}

	var version *RuleVersion
	var ruleType RuleType

	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		rule, err := s.repo.GetRuleForUpdate(ctx, tx, ruleID)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if rule == nil {
			return pkgerrors.ErrNotFound.WithDetail("rule_id", ruleID)
		}
		ruleType = rule.Type

		// A stale expected_rule_version means another maker appended a
		// version since the caller last read the rule.
		if req.ExpectedRuleVersion != nil && *req.ExpectedRuleVersion != rule.Version {
			return pkgerrors.ErrConflict.WithDetail("message", "rule was modified by another request").
				WithDetail("expected_version", *req.ExpectedRuleVersion).
				WithDetail("actual_version", rule.Version)
		}

		action, err := ResolveAction(rule.Type, req.Action)
		if err != nil {
			return err
		}

		version = &RuleVersion{
			RuleID:        rule.ID,
			Version:       rule.CurrentVersion + 1,
			ConditionTree: req.ConditionTree,
			Priority:      req.Priority,
			Action:        action,
			Scope:         req.Scope,
			Status:        approval.StatusDraft,
			CreatedBy:     createdBy,
		}
		if err := s.repo.InsertVersion(ctx, tx, version); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		now := time.Now().UTC()
		if err := s.repo.AdvanceRule(ctx, tx, rule.ID, version.Version, rule.Version+1, now); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		oldValue, err := json.Marshal(map[string]interface{}{"current_version": rule.CurrentVersion})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		newValue, err := json.Marshal(map[string]interface{}{"current_version": version.Version, "rule_version_id": version.ID})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		entry := audit.Entry{
			EntityType:  auditEntityRuleVersion,
			EntityID:    version.ID,
			Action:      audit.ActionUpdate,
			OldValue:    oldValue,
			NewValue:    newValue,
			PerformedBy: createdBy,
		}
		if err := s.auditor.Record(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		return nil
	})
	if txErr != nil {
		// The UNIQUE(rule_id, version) constraint backs up the row lock.
		if _, ok := database.UniqueViolation(txErr); ok {
			return nil, pkgerrors.ErrConflict.WithCause(txErr).WithDetail("message", "rule was modified by another request")
		}
		return nil, txErr
	}

	metrics.RuleVersionsCreatedTotal.WithLabelValues(string(ruleType)).Inc()
	s.logger.InfowCtx(ctx, "Rule version created", "rule_id", ruleID, "version", version.Version)

	return version, nil
}

func (s *service) GetRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}
	return rule, nil
}

func (s *service) GetRuleSummary(ctx context.Context, id string) (*RuleSummary, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.GetLatestVersion(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	summary := &RuleSummary{Rule: *rule}
	if latest != nil {
		summary.LatestPriority = latest.Priority
		summary.LatestAction = latest.Action
		summary.LatestStatus = latest.Status
	}
	return summary, nil
}

func (s *service) GetRuleVersion(ctx context.Context, id string) (*RuleVersion, error) {
	version, err := s.repo.GetVersion(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if version == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_version_id", id)
	}
	return version, nil
}

func (s *service) ListRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	if _, err := s.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if versions == nil {
		versions = []RuleVersion{}
	}
	return versions, nil
}

func (s *service) ListRules(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Rule], error) {
	rules, err := s.repo.ListRules(ctx, filter, p)
	if err != nil {
		return pagination.Page[Rule]{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return pagination.BuildPage(rules, p, func(r Rule) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	}), nil
}

// Simulate is a placeholder: rules are validated for shape but never
// executed by this service.
func (s *service) Simulate(ctx context.Context, ruleID string, req SimulateRequest) (*SimulateResult, error) {
	if _, err := s.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}
	return &SimulateResult{
		RuleID:    ruleID,
		Evaluated: false,
		Message:   "rule simulation is not available",
	}, nil
}
