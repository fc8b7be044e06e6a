package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rulegov/pkg/pagination"
)

type Repository interface {
	Insert(ctx context.Context, tx *sql.Tx, a *Approval) error
	GetPendingForUpdate(ctx context.Context, tx *sql.Tx, entityID string) (*Approval, error)
	GetByIdempotencyKey(ctx context.Context, entityID, key string) (*Approval, error)
	Decide(ctx context.Context, tx *sql.Tx, id string, status TicketStatus, checker, remarks string, at time.Time) (int64, error)
	List(ctx context.Context, filter Filter, p pagination.Params) ([]Approval, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const approvalColumns = "id, entity_type, entity_id, action, maker, checker, status, idempotency_key, remarks, created_at, decided_at"

func (r *PostgresRepository) Insert(ctx context.Context, tx *sql.Tx, a *Approval) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO approvals (id, entity_type, entity_id, action, maker, checker, status, idempotency_key, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.ExecContext(ctx, query,
		a.ID, a.EntityType, a.EntityID, a.Action, a.Maker, a.Checker,
		a.Status, a.IdempotencyKey, a.Remarks, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPendingForUpdate(ctx context.Context, tx *sql.Tx, entityID string) (*Approval, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM approvals
		WHERE entity_id = $1 AND status = $2
		FOR UPDATE
	`, approvalColumns)

	row := tx.QueryRowContext(ctx, query, entityID, TicketPending)

	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, entityID, key string) (*Approval, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM approvals
		WHERE entity_id = $1 AND idempotency_key = $2
	`, approvalColumns)

	row := r.db.QueryRowContext(ctx, query, entityID, key)

	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval by idempotency key: %w", err)
	}
	return a, nil
}

// Decide is the compare-and-swap on the ticket: the PENDING predicate in
// the WHERE clause makes the second of two racing deciders see zero rows
// affected instead of double-deciding.
func (r *PostgresRepository) Decide(ctx context.Context, tx *sql.Tx, id string, status TicketStatus, checker, remarks string, at time.Time) (int64, error) {
	query := `
		UPDATE approvals
		SET status = $1, checker = $2, remarks = $3, decided_at = $4
		WHERE id = $5 AND status = $6
	`

	res, err := tx.ExecContext(ctx, query, status, checker, remarks, at, id, TicketPending)
	if err != nil {
		return 0, fmt.Errorf("failed to decide approval: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter, p pagination.Params) ([]Approval, error) {
	var conds []string
	var args []interface{}

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conds = append(conds, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conds = append(conds, fmt.Sprintf("entity_id = $%d", len(args)))
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
		SELECT %s FROM approvals
		%s
		%s
		LIMIT $%d
	`, approvalColumns, where, order, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}

	return approvals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*Approval, error) {
	var a Approval
	var checker, idempotencyKey sql.NullString
	var remarks sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.EntityType, &a.EntityID, &a.Action, &a.Maker, &checker,
		&a.Status, &idempotencyKey, &remarks, &a.CreatedAt, &decidedAt,
	)
	if err != nil {
		return nil, err
	}

	if checker.Valid {
		a.Checker = &checker.String
	}
	if idempotencyKey.Valid {
		a.IdempotencyKey = &idempotencyKey.String
	}
	if remarks.Valid {
		a.Remarks = remarks.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return &a, nil
}
