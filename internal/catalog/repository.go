package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rulegov/internal/approval"
	"rulegov/pkg/pagination"
)

type Repository interface {
	InsertRule(ctx context.Context, tx *sql.Tx, rule *Rule) error
	InsertVersion(ctx context.Context, tx *sql.Tx, version *RuleVersion) error
	GetRule(ctx context.Context, id string) (*Rule, error)
	GetRuleForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Rule, error)
	AdvanceRule(ctx context.Context, tx *sql.Tx, ruleID string, currentVersion, versionCounter int, at time.Time) error
	GetVersion(ctx context.Context, id string) (*RuleVersion, error)
	GetLatestVersion(ctx context.Context, ruleID string) (*RuleVersion, error)
	ListVersions(ctx context.Context, ruleID string) ([]RuleVersion, error)
	ListRules(ctx context.Context, filter Filter, p pagination.Params) ([]Rule, error)

	GetVersionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleVersion, error)
	SetVersionStatus(ctx context.Context, tx *sql.Tx, id string, status approval.LifecycleStatus, actor string, at time.Time) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const ruleColumns = "id, name, description, type, status, current_version, version, created_by, created_at, updated_at"

const versionColumns = "id, rule_id, version, condition_tree, priority, action, scope, status, created_by, created_at, approved_by, approved_at"

func (r *PostgresRepository) InsertRule(ctx context.Context, tx *sql.Tx, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = rule.CreatedAt

	query := `
		INSERT INTO rules (id, name, description, type, status, current_version, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Type, rule.Status,
		rule.CurrentVersion, rule.Version, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertVersion(ctx context.Context, tx *sql.Tx, version *RuleVersion) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rule_versions (id, rule_id, version, condition_tree, priority, action, scope, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.ExecContext(ctx, query,
		version.ID, version.RuleID, version.Version, nullableJSON(version.ConditionTree),
		version.Priority, version.Action, nullableJSON(version.Scope),
		version.Status, version.CreatedBy, version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule version: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRule(ctx context.Context, id string) (*Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM rules WHERE id = $1", ruleColumns)
	return scanRule(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetRuleForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM rules WHERE id = $1 FOR UPDATE", ruleColumns)
	return scanRule(tx.QueryRowContext(ctx, query, id))
}

// AdvanceRule moves the rule's version pointer and bumps its optimistic-lock
// counter after a new version row is inserted.
func (r *PostgresRepository) AdvanceRule(ctx context.Context, tx *sql.Tx, ruleID string, currentVersion, versionCounter int, at time.Time) error {
	query := `
		UPDATE rules SET current_version = $1, version = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := tx.ExecContext(ctx, query, currentVersion, versionCounter, at, ruleID)
	if err != nil {
		return fmt.Errorf("failed to advance rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetVersion(ctx context.Context, id string) (*RuleVersion, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_versions WHERE id = $1", versionColumns)
	return scanVersion(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetLatestVersion(ctx context.Context, ruleID string) (*RuleVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rule_versions
		WHERE rule_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, versionColumns)
	return scanVersion(r.db.QueryRowContext(ctx, query, ruleID))
}

func (r *PostgresRepository) ListVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rule_versions
		WHERE rule_id = $1
		ORDER BY version DESC
	`, versionColumns)

	rows, err := r.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule versions: %w", err)
	}
	defer rows.Close()

	var versions []RuleVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func (r *PostgresRepository) ListRules(ctx context.Context, filter Filter, p pagination.Params) ([]Rule, error) {
	var conds []string
	var args []interface{}

	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	order := "ORDER BY created_at DESC, id DESC"
	if p.Cursor != nil {
		cmp := "<"
		if p.Direction == pagination.DirectionPrev {
			cmp = ">"
			order = "ORDER BY created_at ASC, id ASC"
		}
		args = append(args, p.Cursor.CreatedAt, p.Cursor.ID)
		conds = append(conds, fmt.Sprintf("(created_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, p.Limit+1)

	query := fmt.Sprintf(`
		SELECT %s FROM rules
		%s
		%s
		LIMIT $%d
	`, ruleColumns, where, order, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *PostgresRepository) GetVersionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleVersion, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_versions WHERE id = $1 FOR UPDATE", versionColumns)
	return scanVersion(tx.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetVersionStatus(ctx context.Context, tx *sql.Tx, id string, status approval.LifecycleStatus, actor string, at time.Time) error {
	var query string
	var args []interface{}

	if status == approval.StatusApproved {
		query = `UPDATE rule_versions SET status = $1, approved_by = $2, approved_at = $3 WHERE id = $4`
		args = []interface{}{status, actor, at, id}
	} else {
		query = `UPDATE rule_versions SET status = $1 WHERE id = $2`
		args = []interface{}{status, id}
	}

	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set rule version status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Type, &rule.Status,
		&rule.CurrentVersion, &rule.Version, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	return &rule, nil
}

func scanVersion(row rowScanner) (*RuleVersion, error) {
	var v RuleVersion
	var conditionTree, scope []byte
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&v.ID, &v.RuleID, &v.Version, &conditionTree, &v.Priority, &v.Action,
		&scope, &v.Status, &v.CreatedBy, &v.CreatedAt, &approvedBy, &approvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule version: %w", err)
	}

	if len(conditionTree) > 0 {
		v.ConditionTree = conditionTree
	}
	if len(scope) > 0 {
		v.Scope = scope
	}
	if approvedBy.Valid {
		v.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		v.ApprovedAt = &t
	}
	return &v, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
