package ruleset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rulegov/internal/approval"
	"rulegov/pkg/pagination"
)

type Repository interface {
	InsertSet(ctx context.Context, tx *sql.Tx, set *RuleSet) error
	InsertVersion(ctx context.Context, tx *sql.Tx, version *RuleSetVersion) error
	GetSet(ctx context.Context, id string) (*RuleSet, error)
	GetSetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleSet, error)
	AdvanceSet(ctx context.Context, tx *sql.Tx, setID string, currentVersion, versionCounter int, at time.Time) error
	GetVersion(ctx context.Context, id string) (*RuleSetVersion, error)
	ListSets(ctx context.Context, p pagination.Params) ([]RuleSet, error)
	CountRules(ctx context.Context, ruleIDs []string) (int, error)

	GetVersionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleSetVersion, error)
	SetVersionStatus(ctx context.Context, tx *sql.Tx, id string, status approval.LifecycleStatus, actor string, at time.Time) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const setColumns = "id, name, description, status, current_version, version, created_by, created_at, updated_at"

const setVersionColumns = "id, rule_set_id, version, rule_ids, status, created_by, created_at, approved_by, approved_at"

func (r *PostgresRepository) InsertSet(ctx context.Context, tx *sql.Tx, set *RuleSet) error {
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	set.UpdatedAt = set.CreatedAt

	query := `
		INSERT INTO rule_sets (id, name, description, status, current_version, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		set.ID, set.Name, set.Description, set.Status,
		set.CurrentVersion, set.Version, set.CreatedBy, set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule set: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertVersion(ctx context.Context, tx *sql.Tx, version *RuleSetVersion) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rule_set_versions (id, rule_set_id, version, rule_ids, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		version.ID, version.RuleSetID, version.Version, pq.Array(version.RuleIDs),
		version.Status, version.CreatedBy, version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule set version: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSet(ctx context.Context, id string) (*RuleSet, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_sets WHERE id = $1", setColumns)
	return scanSet(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetSetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleSet, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_sets WHERE id = $1 FOR UPDATE", setColumns)
	return scanSet(tx.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) AdvanceSet(ctx context.Context, tx *sql.Tx, setID string, currentVersion, versionCounter int, at time.Time) error {
	query := `
		UPDATE rule_sets SET current_version = $1, version = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := tx.ExecContext(ctx, query, currentVersion, versionCounter, at, setID)
	if err != nil {
		return fmt.Errorf("failed to advance rule set: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetVersion(ctx context.Context, id string) (*RuleSetVersion, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_set_versions WHERE id = $1", setVersionColumns)
	return scanSetVersion(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListSets(ctx context.Context, p pagination.Params) ([]RuleSet, error) {
	where := ""
	order := "ORDER BY created_at DESC, id DESC"
	var args []interface{}

	if p.Cursor != nil {
		cmp := "<"
		if p.Direction == pagination.DirectionPrev {
			cmp = ">"
			order = "ORDER BY created_at ASC, id ASC"
		}
		args = append(args, p.Cursor.CreatedAt, p.Cursor.ID)
		where = fmt.Sprintf("WHERE (created_at, id) %s ($1, $2)", cmp)
	}
	args = append(args, p.Limit+1)

	query := fmt.Sprintf(`
		SELECT %s FROM rule_sets
		%s
		%s
		LIMIT $%d
	`, setColumns, where, order, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer rows.Close()

	var sets []RuleSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}
	return sets, rows.Err()
}

// CountRules reports how many of the given rule IDs exist, so membership can
// be validated before a version is written.
func (r *PostgresRepository) CountRules(ctx context.Context, ruleIDs []string) (int, error) {
	query := `SELECT COUNT(*) FROM rules WHERE id = ANY($1)`
	var count int
	if err := r.db.QueryRowContext(ctx, query, pq.Array(ruleIDs)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetVersionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*RuleSetVersion, error) {
	query := fmt.Sprintf("SELECT %s FROM rule_set_versions WHERE id = $1 FOR UPDATE", setVersionColumns)
	return scanSetVersion(tx.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetVersionStatus(ctx context.Context, tx *sql.Tx, id string, status approval.LifecycleStatus, actor string, at time.Time) error {
	var query string
	var args []interface{}

	if status == approval.StatusApproved {
		query = `UPDATE rule_set_versions SET status = $1, approved_by = $2, approved_at = $3 WHERE id = $4`
		args = []interface{}{status, actor, at, id}
	} else {
		query = `UPDATE rule_set_versions SET status = $1 WHERE id = $2`
		args = []interface{}{status, id}
	}

	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set rule set version status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSet(row rowScanner) (*RuleSet, error) {
	var set RuleSet
	err := row.Scan(
		&set.ID, &set.Name, &set.Description, &set.Status,
		&set.CurrentVersion, &set.Version, &set.CreatedBy, &set.CreatedAt, &set.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule set: %w", err)
	}
	return &set, nil
}

func scanSetVersion(row rowScanner) (*RuleSetVersion, error) {
	var v RuleSetVersion
	var ruleIDs pq.StringArray
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&v.ID, &v.RuleSetID, &v.Version, &ruleIDs, &v.Status,
		&v.CreatedBy, &v.CreatedAt, &approvedBy, &approvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule set version: %w", err)
	}

	v.RuleIDs = ruleIDs
	if approvedBy.Valid {
		v.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		v.ApprovedAt = &t
	}
	return &v, nil
}
