package ruleset

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"rulegov/internal/approval"
	"rulegov/internal/audit"
	"rulegov/internal/constants"
	"rulegov/internal/database"
	"rulegov/internal/logger"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/metrics"
	"rulegov/pkg/pagination"
)

type Service interface {
	CreateRuleSet(ctx context.Context, req CreateRuleSetRequest, createdBy string) (*CreateRuleSetResult, error)
	CreateRuleSetVersion(ctx context.Context, setID string, req CreateRuleSetVersionRequest, createdBy string) (*RuleSetVersion, error)
	GetRuleSet(ctx context.Context, id string) (*RuleSet, error)
	GetRuleSetVersion(ctx context.Context, id string) (*RuleSetVersion, error)
	ListRuleSets(ctx context.Context, p pagination.Params) (pagination.Page[RuleSet], error)
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

const auditEntityRuleSet = "RULE_SET"
const auditEntityRuleSetVersion = "RULE_SET_VERSION"

func (s *service) CreateRuleSet(ctx context.Context, req CreateRuleSetRequest, createdBy string) (*CreateRuleSetResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "name is required")
	}
	ruleIDs, err := s.checkMembers(ctx, req.RuleIDs)
	if err != nil {
		return nil, err
	}

	set := &RuleSet{
		Name:           req.Name,
		Description:    req.Description,
		Status:         SetActive,
		CurrentVersion: 1,
		Version:        1,
		CreatedBy:      createdBy,
	}

	var version *RuleSetVersion
	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.repo.InsertSet(ctx, tx, set); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		version = &RuleSetVersion{
			RuleSetID: set.ID,
			Version:   1,
			RuleIDs:   ruleIDs,
			Status:    approval.StatusDraft,
			CreatedBy: createdBy,
		}
		if err := s.repo.InsertVersion(ctx, tx, version); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		newValue, err := json.Marshal(set)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		entry := audit.Entry{
			EntityType:  auditEntityRuleSet,
			EntityID:    set.ID,
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
			return nil, pkgerrors.ErrConflict.WithCause(txErr).WithDetail("message", "a rule set with this name already exists")
		}
		return nil, txErr
	}

	metrics.RuleSetMutationsTotal.WithLabelValues("create").Inc()
	s.logger.InfowCtx(ctx, "Rule set created", "rule_set_id", set.ID, "rules", len(ruleIDs))

	return &CreateRuleSetResult{RuleSet: set, RuleSetVersion: version}, nil
}

func (s *service) CreateRuleSetVersion(ctx context.Context, setID string, req CreateRuleSetVersionRequest, createdBy string) (*RuleSetVersion, error) {
	ruleIDs, err := s.checkMembers(ctx, req.RuleIDs)
	if err != nil {
		return nil, err
	}

	var version *RuleSetVersion
	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		set, err := s.repo.GetSetForUpdate(ctx, tx, setID)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if set == nil {
			return pkgerrors.ErrNotFound.WithDetail("rule_set_id", setID)
		}

		if req.ExpectedSetVersion != nil && *req.ExpectedSetVersion != set.Version {
			return pkgerrors.ErrConflict.WithDetail("message", "rule set was modified by another request").
				WithDetail("expected_version", *req.ExpectedSetVersion).
				WithDetail("actual_version", set.Version)
		}

		version = &RuleSetVersion{
			RuleSetID: set.ID,
			Version:   set.CurrentVersion + 1,
			RuleIDs:   ruleIDs,
			Status:    approval.StatusDraft,
			CreatedBy: createdBy,
		}
		if err := s.repo.InsertVersion(ctx, tx, version); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		now := time.Now().UTC()
		if err := s.repo.AdvanceSet(ctx, tx, set.ID, version.Version, set.Version+1, now); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		oldValue, err := json.Marshal(map[string]interface{}{"current_version": set.CurrentVersion})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		newValue, err := json.Marshal(map[string]interface{}{"current_version": version.Version, "rule_set_version_id": version.ID})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		entry := audit.Entry{
			EntityType:  auditEntityRuleSetVersion,
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
		if _, ok := database.UniqueViolation(txErr); ok {
			return nil, pkgerrors.ErrConflict.WithCause(txErr).WithDetail("message", "rule set was modified by another request")
		}
		return nil, txErr
	}

	metrics.RuleSetMutationsTotal.WithLabelValues("version").Inc()
	return version, nil
}

func (s *service) GetRuleSet(ctx context.Context, id string) (*RuleSet, error) {
	set, err := s.repo.GetSet(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if set == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_set_id", id)
	}
	return set, nil
}

func (s *service) GetRuleSetVersion(ctx context.Context, id string) (*RuleSetVersion, error) {
	version, err := s.repo.GetVersion(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if version == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_set_version_id", id)
	}
	return version, nil
}

func (s *service) ListRuleSets(ctx context.Context, p pagination.Params) (pagination.Page[RuleSet], error) {
	sets, err := s.repo.ListSets(ctx, p)
	if err != nil {
		return pagination.Page[RuleSet]{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return pagination.BuildPage(sets, p, func(rs RuleSet) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rs.CreatedAt, ID: rs.ID}
	}), nil
}

// checkMembers dedupes the member list and verifies every rule exists.
func (s *service) checkMembers(ctx context.Context, ruleIDs []string) ([]string, error) {
	if len(ruleIDs) == 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "rule_ids must not be empty")
	}
	if len(ruleIDs) > constants.MaxRuleSetMembers {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "rule_ids exceeds the maximum set size")
	}

	seen := make(map[string]bool, len(ruleIDs))
	deduped := make([]string, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		if strings.TrimSpace(id) == "" {
			return nil, pkgerrors.ErrValidation.WithDetail("message", "rule_ids must not contain empty values")
		}
		if !seen[id] {
			seen[id] = true
			deduped = append(deduped, id)
		}
	}

	count, err := s.repo.CountRules(ctx, deduped)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if count != len(deduped) {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "one or more rule_ids do not exist")
	}
	return deduped, nil
}
