package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rulegov/pkg/pagination"
)

type Repository interface {
	ListEntries(ctx context.Context, filter Filter, p pagination.Params) ([]Entry, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListEntries(ctx context.Context, filter Filter, p pagination.Params) ([]Entry, error) {
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

	order := "ORDER BY performed_at DESC, id DESC"
	if p.Cursor != nil {
		cmp := "<"
		if p.Direction == pagination.DirectionPrev {
			cmp = ">"
			order = "ORDER BY performed_at ASC, id ASC"
		}
		args = append(args, p.Cursor.CreatedAt, p.Cursor.ID)
		conds = append(conds, fmt.Sprintf("(performed_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, p.Limit+1)
	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, action, old_value, new_value, performed_by, performed_at
		FROM audit_logs
		%s
		%s
		LIMIT $%d
	`, where, order, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oldValue, newValue []byte
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&oldValue, &newValue, &e.PerformedBy, &e.PerformedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(oldValue) > 0 {
			e.OldValue = oldValue
		}
		if len(newValue) > 0 {
			e.NewValue = newValue
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
