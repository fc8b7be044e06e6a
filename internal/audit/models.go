package audit

import (
	"encoding/json"
	"time"
)

type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// Entry is one append-only audit row. Rows are written inside the same
// transaction as the state change they describe and never touched again.
type Entry struct {
	ID          string          `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Action      Action          `json:"action"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	PerformedBy string          `json:"performed_by"`
	PerformedAt time.Time       `json:"performed_at"`
}

// Filter narrows an audit listing. Zero values match everything.
type Filter struct {
	EntityType string
	EntityID   string
}
