package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// EntityType identifies the kind of versioned entity a ticket governs.
type EntityType string

const (
	EntityRuleVersion    EntityType = "RULE_VERSION"
	EntityRuleSetVersion EntityType = "RULE_SET_VERSION"
)

// LifecycleStatus is the state machine of a governed version:
// DRAFT -> PENDING_APPROVAL -> {APPROVED, REJECTED}, with
// REJECTED -> PENDING_APPROVAL on resubmission. APPROVED is terminal.
type LifecycleStatus string

const (
	StatusDraft           LifecycleStatus = "DRAFT"
	StatusPendingApproval LifecycleStatus = "PENDING_APPROVAL"
	StatusApproved        LifecycleStatus = "APPROVED"
	StatusRejected        LifecycleStatus = "REJECTED"
)

// TicketStatus is the state of the approval ticket itself.
type TicketStatus string

const (
	TicketPending  TicketStatus = "PENDING"
	TicketApproved TicketStatus = "APPROVED"
	TicketRejected TicketStatus = "REJECTED"
)

// Approval is a workflow ticket for one entity transition. Created by
// submit, decided exactly once by approve or reject.
type Approval struct {
	ID             string       `json:"id"`
	EntityType     EntityType   `json:"entity_type"`
	EntityID       string       `json:"entity_id"`
	Action         string       `json:"action"`
	Maker          string       `json:"maker"`
	Checker        *string      `json:"checker,omitempty"`
	Status         TicketStatus `json:"status"`
	IdempotencyKey *string      `json:"idempotency_key,omitempty"`
	Remarks        string       `json:"remarks,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty"`
}

type SubmitRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Remarks        string `json:"remarks"`
}

type DecisionRequest struct {
	Remarks string `json:"remarks"`
}

// SubmitResult reports the ticket plus where the entity ended up; an
// idempotent replay of an already-decided ticket reports the decided state.
type SubmitResult struct {
	Approval     *Approval       `json:"approval"`
	EntityStatus LifecycleStatus `json:"entity_status"`
}

// Filter narrows an approval listing. Zero values match everything.
type Filter struct {
	EntityType EntityType
	EntityID   string
	Status     TicketStatus
}

// EntityState is the workflow-relevant view of a governed version row.
type EntityState struct {
	ID       string
	Status   LifecycleStatus
	Snapshot json.RawMessage
}

// EntityStore adapts one versioned entity kind to the workflow. Both
// methods run inside the workflow's transaction.
type EntityStore interface {
	// GetForUpdate loads and row-locks the entity; nil when absent.
	GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*EntityState, error)
	// SetStatus transitions the entity, stamping approver fields when the
	// new status is APPROVED.
	SetStatus(ctx context.Context, tx *sql.Tx, id string, status LifecycleStatus, actor string, at time.Time) error
}
