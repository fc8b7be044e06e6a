package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder appends audit rows. It is stateless: every write goes through
// the caller's transaction so a committed state change and its audit
// record exist together or not at all.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(ctx context.Context, tx *sql.Tx, entry Entry) error {
	switch entry.Action {
	case ActionCreate:
		if entry.OldValue != nil {
			return fmt.Errorf("audit %s entry must not carry an old value", entry.Action)
		}
	case ActionDelete:
		if entry.NewValue != nil {
			return fmt.Errorf("audit %s entry must not carry a new value", entry.Action)
		}
	case ActionUpdate, ActionSubmit, ActionApprove, ActionReject:
		if entry.OldValue == nil || entry.NewValue == nil {
			return fmt.Errorf("audit %s entry must carry both old and new values", entry.Action)
		}
	default:
		return fmt.Errorf("unknown audit action %q", entry.Action)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, old_value, new_value, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var oldValue, newValue interface{}
	if entry.OldValue != nil {
		oldValue = []byte(entry.OldValue)
	}
	if entry.NewValue != nil {
		newValue = []byte(entry.NewValue)
	}

	_, err := tx.ExecContext(ctx, query,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		oldValue, newValue, entry.PerformedBy, entry.PerformedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	return nil
}
