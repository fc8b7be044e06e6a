package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegov/pkg/pagination"
)

func TestRecorder_Record_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	r := NewRecorder()
	err = r.Record(context.Background(), tx, Entry{
		EntityType:  "RULE",
		EntityID:    "rule-1",
		Action:      ActionCreate,
		NewValue:    json.RawMessage(`{"name":"velocity_check"}`),
		PerformedBy: "maker@acme",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Record_CreateRejectsOldValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	r := NewRecorder()
	err = r.Record(context.Background(), tx, Entry{
		EntityType:  "RULE",
		EntityID:    "rule-1",
		Action:      ActionCreate,
		OldValue:    json.RawMessage(`{}`),
		NewValue:    json.RawMessage(`{}`),
		PerformedBy: "maker@acme",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must not carry an old value")
}

func TestRecorder_Record_TransitionRequiresBothValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	r := NewRecorder()
	for _, action := range []Action{ActionUpdate, ActionSubmit, ActionApprove, ActionReject} {
		err = r.Record(context.Background(), tx, Entry{
			EntityType:  "RULE_VERSION",
			EntityID:    "version-1",
			Action:      action,
			NewValue:    json.RawMessage(`{"status":"PENDING_APPROVAL"}`),
			PerformedBy: "maker@acme",
		})
		assert.Error(t, err, "action %s", action)
	}
}

func TestRecorder_Record_UnknownAction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	r := NewRecorder()
	err = r.Record(context.Background(), tx, Entry{
		EntityType:  "RULE",
		EntityID:    "rule-1",
		Action:      Action("PURGE"),
		PerformedBy: "maker@acme",
	})
	assert.Error(t, err)
}

func TestRepository_ListEntries_Filters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "entity_type", "entity_id", "action", "old_value", "new_value", "performed_by", "performed_at",
	}).AddRow("entry-1", "RULE", "rule-1", "CREATE", nil, []byte(`{"name":"r"}`), "maker@acme", now)

	mock.ExpectQuery(`SELECT id, entity_type, entity_id, action, old_value, new_value, performed_by, performed_at\s+FROM audit_logs\s+WHERE entity_type = \$1 AND entity_id = \$2`).
		WithArgs("RULE", "rule-1", 11).
		WillReturnRows(rows)

	repo := NewRepository(db)
	entries, err := repo.ListEntries(context.Background(), Filter{EntityType: "RULE", EntityID: "rule-1"}, pagination.Params{
		Limit:     10,
		Direction: pagination.DirectionNext,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Nil(t, entries[0].OldValue)
	assert.JSONEq(t, `{"name":"r"}`, string(entries[0].NewValue))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListEntries_PrevCursorReversesOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cursorAt := time.Now().UTC()
	mock.ExpectQuery(`FROM audit_logs\s+WHERE \(performed_at, id\) > \(\$1, \$2\)\s+ORDER BY performed_at ASC, id ASC`).
		WithArgs(cursorAt, "entry-5", 11).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "entity_type", "entity_id", "action", "old_value", "new_value", "performed_by", "performed_at",
		}))

	repo := NewRepository(db)
	_, err = repo.ListEntries(context.Background(), Filter{}, pagination.Params{
		Cursor:    &pagination.Cursor{CreatedAt: cursorAt, ID: "entry-5"},
		Limit:     10,
		Direction: pagination.DirectionPrev,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
