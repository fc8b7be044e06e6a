package approval

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegov/internal/audit"
	"rulegov/internal/logger"
	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/pagination"
)

type fakeRepo struct {
	inserted    []*Approval
	insertErr   error
	pending     *Approval
	byKey       *Approval
	byKeyCalls  int
	decideRows  int64
	decided     []TicketStatus
	listResults []Approval
}

func (f *fakeRepo) Insert(ctx context.Context, tx *sql.Tx, a *Approval) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if a.ID == "" {
		a.ID = "approval-1"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeRepo) GetPendingForUpdate(ctx context.Context, tx *sql.Tx, entityID string) (*Approval, error) {
	return f.pending, nil
}

func (f *fakeRepo) GetByIdempotencyKey(ctx context.Context, entityID, key string) (*Approval, error) {
	f.byKeyCalls++
	return f.byKey, nil
}

func (f *fakeRepo) Decide(ctx context.Context, tx *sql.Tx, id string, status TicketStatus, checker, remarks string, at time.Time) (int64, error) {
	f.decided = append(f.decided, status)
	return f.decideRows, nil
}

func (f *fakeRepo) List(ctx context.Context, filter Filter, p pagination.Params) ([]Approval, error) {
	return f.listResults, nil
}

type fakeStore struct {
	state      *EntityState
	setStatus  []LifecycleStatus
	setActors  []string
	setErr     error
	missing    bool
}

func (f *fakeStore) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*EntityState, error) {
	if f.missing {
		return nil, nil
	}
	return f.state, nil
}

func (f *fakeStore) SetStatus(ctx context.Context, tx *sql.Tx, id string, status LifecycleStatus, actor string, at time.Time) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setStatus = append(f.setStatus, status)
	f.setActors = append(f.setActors, actor)
	return nil
}

func newTestService(t *testing.T, repo Repository, store EntityStore) (Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := NewService(db, repo, audit.NewRecorder(), map[EntityType]EntityStore{
		EntityRuleVersion: store,
	}, logger.NopLogger())
	return svc, mock, func() { db.Close() }
}

func expectAuditInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestSubmit_FromDraft(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusDraft}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	expectAuditInsert(mock)
	mock.ExpectCommit()

	result, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{Remarks: "initial"})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, result.EntityStatus)
	assert.Equal(t, TicketPending, result.Approval.Status)
	assert.Equal(t, "maker@corp", result.Approval.Maker)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, []LifecycleStatus{StatusPendingApproval}, store.setStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_Resubmit_FromRejected(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusRejected}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	expectAuditInsert(mock)
	mock.ExpectCommit()

	result, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, result.EntityStatus)
}

func TestSubmit_WrongState_Conflict(t *testing.T) {
	for _, status := range []LifecycleStatus{StatusPendingApproval, StatusApproved} {
		t.Run(string(status), func(t *testing.T) {
			repo := &fakeRepo{}
			store := &fakeStore{state: &EntityState{ID: "rv-1", Status: status}}
			svc, mock, cleanup := newTestService(t, repo, store)
			defer cleanup()

			mock.ExpectBegin()
			mock.ExpectRollback()

			_, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{})
			assert.True(t, pkgerrors.IsConflict(err))
			assert.Empty(t, repo.inserted)
		})
	}
}

func TestSubmit_EntityNotFound(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{missing: true}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-404", "maker@corp", SubmitRequest{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestSubmit_IdempotentReplay_PreCheck(t *testing.T) {
	now := time.Now().UTC()
	checker := "checker@corp"
	existing := &Approval{
		ID:         "approval-7",
		EntityType: EntityRuleVersion,
		EntityID:   "rv-1",
		Maker:      "maker@corp",
		Checker:    &checker,
		Status:     TicketApproved,
		CreatedAt:  now,
		DecidedAt:  &now,
	}
	repo := &fakeRepo{byKey: existing}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusApproved}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	result, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "approval-7", result.Approval.ID)
	assert.Equal(t, StatusApproved, result.EntityStatus)
	assert.Empty(t, repo.inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_IdempotentReplay_AfterUniqueViolation(t *testing.T) {
	// The pre-check misses, the insert hits the unique index, and the
	// re-read after rollback finds the ticket the competing request wrote.
	replayed := &Approval{ID: "approval-9", EntityID: "rv-1", Maker: "maker@corp", Status: TicketPending}

	base := &fakeRepo{insertErr: uniqueViolationErr()}
	first := true
	repo := &switchingRepo{fakeRepo: base, onByKey: func() *Approval {
		if first {
			first = false
			return nil
		}
		return replayed
	}}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusDraft}}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	svc := NewService(db, repo, audit.NewRecorder(), map[EntityType]EntityStore{
		EntityRuleVersion: store,
	}, logger.NopLogger())

	result, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "approval-9", result.Approval.ID)
	assert.Equal(t, StatusPendingApproval, result.EntityStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_PendingAlready_Conflict(t *testing.T) {
	repo := &fakeRepo{insertErr: uniqueViolationErr()}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusDraft}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", SubmitRequest{})
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestApprove_HappyPath(t *testing.T) {
	repo := &fakeRepo{
		pending:    &Approval{ID: "approval-1", EntityID: "rv-1", Maker: "maker@corp", Status: TicketPending},
		decideRows: 1,
	}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusPendingApproval}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	expectAuditInsert(mock)
	mock.ExpectCommit()

	approval, err := svc.Approve(context.Background(), EntityRuleVersion, "rv-1", "checker@corp", DecisionRequest{Remarks: "lgtm"})
	require.NoError(t, err)
	assert.Equal(t, TicketApproved, approval.Status)
	require.NotNil(t, approval.Checker)
	assert.Equal(t, "checker@corp", *approval.Checker)
	assert.NotNil(t, approval.DecidedAt)
	assert.Equal(t, []LifecycleStatus{StatusApproved}, store.setStatus)
	assert.Equal(t, []string{"checker@corp"}, store.setActors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReject_MovesEntityToRejected(t *testing.T) {
	repo := &fakeRepo{
		pending:    &Approval{ID: "approval-1", EntityID: "rv-1", Maker: "maker@corp", Status: TicketPending},
		decideRows: 1,
	}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusPendingApproval}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	expectAuditInsert(mock)
	mock.ExpectCommit()

	approval, err := svc.Reject(context.Background(), EntityRuleVersion, "rv-1", "checker@corp", DecisionRequest{Remarks: "needs work"})
	require.NoError(t, err)
	assert.Equal(t, TicketRejected, approval.Status)
	assert.Equal(t, []LifecycleStatus{StatusRejected}, store.setStatus)
}

func TestApprove_MakerCannotCheck(t *testing.T) {
	repo := &fakeRepo{
		pending: &Approval{ID: "approval-1", EntityID: "rv-1", Maker: "maker@corp", Status: TicketPending},
	}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusPendingApproval}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), EntityRuleVersion, "rv-1", "maker@corp", DecisionRequest{})
	assert.True(t, pkgerrors.IsMakerChecker(err))
	assert.Empty(t, repo.decided)
	assert.Empty(t, store.setStatus)
}

func TestApprove_NoPendingTicket(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusApproved}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), EntityRuleVersion, "rv-1", "checker@corp", DecisionRequest{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestApprove_LostRace_Conflict(t *testing.T) {
	// The CAS update matched zero rows: another checker decided first.
	repo := &fakeRepo{
		pending:    &Approval{ID: "approval-1", EntityID: "rv-1", Maker: "maker@corp", Status: TicketPending},
		decideRows: 0,
	}
	store := &fakeStore{state: &EntityState{ID: "rv-1", Status: StatusPendingApproval}}
	svc, mock, cleanup := newTestService(t, repo, store)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), EntityRuleVersion, "rv-1", "checker@corp", DecisionRequest{})
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Empty(t, store.setStatus)
}

func TestApprove_UnknownEntityType(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{}
	svc, _, cleanup := newTestService(t, repo, store)
	defer cleanup()

	_, err := svc.Approve(context.Background(), EntityType("UNKNOWN"), "rv-1", "checker@corp", DecisionRequest{})
	assert.Error(t, err)
}

func TestListApprovals_BuildsPage(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{listResults: []Approval{
		{ID: "a-1", CreatedAt: now},
		{ID: "a-2", CreatedAt: now.Add(-time.Minute)},
	}}
	svc, _, cleanup := newTestService(t, repo, &fakeStore{})
	defer cleanup()

	page, err := svc.ListApprovals(context.Background(), Filter{}, pagination.Params{Limit: 10, Direction: pagination.DirectionNext})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasNext)
}

// switchingRepo overrides GetByIdempotencyKey per call for replay tests.
type switchingRepo struct {
	*fakeRepo
	onByKey func() *Approval
}

func (s *switchingRepo) GetByIdempotencyKey(ctx context.Context, entityID, key string) (*Approval, error) {
	return s.onByKey(), nil
}

func uniqueViolationErr() error {
	return &pq.Error{Code: "23505", Constraint: "approvals_one_pending_per_entity"}
}
