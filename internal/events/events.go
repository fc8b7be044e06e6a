package events

import (
	"time"

	"rulegov/internal/approval"
)

// EventType names follow <entity>.<decision>.
type EventType string

const (
	EventRuleVersionApproved    EventType = "rule_version.approved"
	EventRuleVersionRejected    EventType = "rule_version.rejected"
	EventRuleSetVersionApproved EventType = "ruleset_version.approved"
	EventRuleSetVersionRejected EventType = "ruleset_version.rejected"
)

// LifecycleEvent tells downstream evaluation engines that a governed version
// reached a terminal decision and rule state should be reloaded.
type LifecycleEvent struct {
	ID         string              `json:"id"`
	Type       EventType           `json:"type"`
	EntityType approval.EntityType `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Decision   string              `json:"decision"`
	DecidedBy  string              `json:"decided_by"`
	OccurredAt time.Time           `json:"occurred_at"`
	Source     string              `json:"source"`
}

func eventTypeFor(entityType approval.EntityType, decision approval.TicketStatus) EventType {
	approved := decision == approval.TicketApproved
	if entityType == approval.EntityRuleSetVersion {
		if approved {
			return EventRuleSetVersionApproved
		}
		return EventRuleSetVersionRejected
	}
	if approved {
		return EventRuleVersionApproved
	}
	return EventRuleVersionRejected
}
