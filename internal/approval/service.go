package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"rulegov/internal/audit"
	"rulegov/internal/database"
	"rulegov/internal/logger"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/metrics"
	"rulegov/pkg/pagination"
)

type Service interface {
	Submit(ctx context.Context, entityType EntityType, entityID, maker string, req SubmitRequest) (*SubmitResult, error)
	Approve(ctx context.Context, entityType EntityType, entityID, checker string, req DecisionRequest) (*Approval, error)
	Reject(ctx context.Context, entityType EntityType, entityID, checker string, req DecisionRequest) (*Approval, error)
	ListApprovals(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Approval], error)
}

// Notifier receives decided-entity notifications after the governing
// transaction commits. Publishing is best-effort and never part of the
// transaction.
type Notifier interface {
	EntityDecided(ctx context.Context, entityType EntityType, entityID string, decision TicketStatus, decidedBy string)
}

type service struct {
	db       *sql.DB
	repo     Repository
	stores   map[EntityType]EntityStore
	auditor  *audit.Recorder
	notifier Notifier
	logger   logger.Logger
}

type ServiceOption func(*service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		s.notifier = n
	}
}

func NewService(db *sql.DB, repo Repository, auditor *audit.Recorder, stores map[EntityType]EntityStore, log logger.Logger, opts ...ServiceOption) Service {
	s := &service{
		db:      db,
		repo:    repo,
		stores:  stores,
		auditor: auditor,
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Submit(ctx context.Context, entityType EntityType, entityID, maker string, req SubmitRequest) (*SubmitResult, error) {
	store, err := s.storeFor(entityType)
	if err != nil {
		return nil, err
	}

	// Pre-check read for the common retry path. Racy on its own, which is
	// why the insert below also catches the uniqueness violation.
	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, entityID, req.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if existing != nil {
			return replayResult(existing), nil
		}
	}

	approval := &Approval{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     string(audit.ActionSubmit),
		Maker:      maker,
		Status:     TicketPending,
		Remarks:    req.Remarks,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		approval.IdempotencyKey = &key
	}

	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		state, err := store.GetForUpdate(ctx, tx, entityID)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if state == nil {
			return pkgerrors.ErrNotFound.WithDetail("entity_id", entityID)
		}
		if state.Status != StatusDraft && state.Status != StatusRejected {
			return pkgerrors.ErrConflict.WithDetail("message",
				"entity cannot be submitted from status "+string(state.Status))
		}

		if err := s.repo.Insert(ctx, tx, approval); err != nil {
			return err
		}
		if err := store.SetStatus(ctx, tx, entityID, StatusPendingApproval, maker, approval.CreatedAt); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		return s.recordTransition(ctx, tx, audit.ActionSubmit, entityType, entityID,
			state.Status, StatusPendingApproval, maker, approval.ID)
	})

	if txErr != nil {
		// The partial unique index on PENDING approvals and the
		// idempotency-key constraint both surface here. A supplied key is
		// re-read after rollback: the competing transaction has committed
		// by the time the violation is reported.
		if _, ok := database.UniqueViolation(txErr); ok {
			if req.IdempotencyKey != "" {
				existing, err := s.repo.GetByIdempotencyKey(ctx, entityID, req.IdempotencyKey)
				if err == nil && existing != nil {
					return replayResult(existing), nil
				}
			}
			return nil, pkgerrors.ErrConflict.WithCause(txErr).WithDetail("message",
				"an approval is already pending for this entity")
		}
		return nil, txErr
	}

	metrics.ApprovalsSubmittedTotal.WithLabelValues(string(entityType)).Inc()
	return &SubmitResult{Approval: approval, EntityStatus: StatusPendingApproval}, nil
}

func (s *service) Approve(ctx context.Context, entityType EntityType, entityID, checker string, req DecisionRequest) (*Approval, error) {
	return s.decide(ctx, entityType, entityID, checker, req.Remarks, TicketApproved)
}

func (s *service) Reject(ctx context.Context, entityType EntityType, entityID, checker string, req DecisionRequest) (*Approval, error) {
	return s.decide(ctx, entityType, entityID, checker, req.Remarks, TicketRejected)
}

func (s *service) decide(ctx context.Context, entityType EntityType, entityID, checker, remarks string, decision TicketStatus) (*Approval, error) {
	store, err := s.storeFor(entityType)
	if err != nil {
		return nil, err
	}

	var decided *Approval
	now := time.Now().UTC()

	txErr := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		state, err := store.GetForUpdate(ctx, tx, entityID)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if state == nil {
			return pkgerrors.ErrNotFound.WithDetail("entity_id", entityID)
		}

		pending, err := s.repo.GetPendingForUpdate(ctx, tx, entityID)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if pending == nil {
			return pkgerrors.ErrNotFound.WithDetail("message", "no pending approval for entity")
		}
		if pending.Maker == checker {
			return pkgerrors.ErrMakerChecker.WithDetail("maker", pending.Maker)
		}

		rows, err := s.repo.Decide(ctx, tx, pending.ID, decision, checker, remarks, now)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		if rows == 0 {
			return pkgerrors.ErrConflict.WithDetail("message", "approval already decided")
		}

		entityStatus := entityStatusFor(decision)
		if err := store.SetStatus(ctx, tx, entityID, entityStatus, checker, now); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}

		action := audit.ActionApprove
		if decision == TicketRejected {
			action = audit.ActionReject
		}
		if err := s.recordTransition(ctx, tx, action, entityType, entityID,
			state.Status, entityStatus, checker, pending.ID); err != nil {
			return err
		}

		pending.Status = decision
		pending.Checker = &checker
		pending.Remarks = remarks
		pending.DecidedAt = &now
		decided = pending
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	metrics.ApprovalsDecidedTotal.WithLabelValues(string(entityType), string(decision)).Inc()

	if s.notifier != nil {
		s.notifier.EntityDecided(ctx, entityType, entityID, decision, checker)
	}
	return decided, nil
}

func (s *service) ListApprovals(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Approval], error) {
	approvals, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return pagination.Page[Approval]{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return pagination.BuildPage(approvals, p, func(a Approval) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	}), nil
}

func (s *service) storeFor(entityType EntityType) (EntityStore, error) {
	store, ok := s.stores[entityType]
	if !ok {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "no store registered for entity type")
	}
	return store, nil
}

func (s *service) recordTransition(ctx context.Context, tx *sql.Tx, action audit.Action, entityType EntityType, entityID string, from, to LifecycleStatus, actor, approvalID string) error {
	oldValue, err := json.Marshal(map[string]interface{}{"status": from})
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	newValue, err := json.Marshal(map[string]interface{}{"status": to, "approval_id": approvalID})
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	entry := audit.Entry{
		EntityType:  string(entityType),
		EntityID:    entityID,
		Action:      action,
		OldValue:    oldValue,
		NewValue:    newValue,
		PerformedBy: actor,
	}
	if err := s.auditor.Record(ctx, tx, entry); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return nil
}

func replayResult(a *Approval) *SubmitResult {
	return &SubmitResult{Approval: a, EntityStatus: entityStatusFor(a.Status)}
}

func entityStatusFor(status TicketStatus) LifecycleStatus {
	switch status {
	case TicketApproved:
		return StatusApproved
	case TicketRejected:
		return StatusRejected
	default:
		return StatusPendingApproval
	}
}
