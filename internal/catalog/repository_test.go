package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegov/internal/approval"
	"rulegov/pkg/pagination"
)

func ruleRows(rules ...Rule) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "description", "type", "status", "current_version", "version", "created_by", "created_at", "updated_at"})
	for _, r := range rules {
		rows.AddRow(r.ID, r.Name, r.Description, r.Type, r.Status, r.CurrentVersion, r.Version, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func TestRepository_GetRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM rules WHERE id").
		WithArgs("rule-1").
		WillReturnRows(ruleRows(Rule{
			ID: "rule-1", Name: "velocity", Type: TypeAuth, Status: RuleActive,
			CurrentVersion: 3, Version: 3, CreatedBy: "maker@corp", CreatedAt: now, UpdatedAt: now,
		}))

	rule, err := repo.GetRule(context.Background(), "rule-1")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "velocity", rule.Name)
	assert.Equal(t, 3, rule.CurrentVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetRule_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM rules WHERE id").
		WithArgs("missing").
		WillReturnRows(ruleRows())

	rule, err := repo.GetRule(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestRepository_InsertVersion_NullableJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rule_versions").
		WithArgs(sqlmock.AnyArg(), "rule-1", 1, nil, 0, ActionReview, nil,
			approval.StatusDraft, "maker@corp", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	version := &RuleVersion{RuleID: "rule-1", Version: 1, Action: ActionReview, Status: approval.StatusDraft, CreatedBy: "maker@corp"}
	require.NoError(t, repo.InsertVersion(context.Background(), tx, version))
	assert.NotEmpty(t, version.ID)
	assert.False(t, version.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListRules_NextPageCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	boundary := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM rules\s+WHERE \(created_at, id\) < \(\$1, \$2\)\s+ORDER BY created_at DESC, id DESC`).
		WithArgs(boundary, "rule-5", 11).
		WillReturnRows(ruleRows())

	p := pagination.Params{
		Cursor:    &pagination.Cursor{CreatedAt: boundary, ID: "rule-5"},
		Limit:     10,
		Direction: pagination.DirectionNext,
	}
	_, err = repo.ListRules(context.Background(), Filter{}, p)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListRules_PrevReversesOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	boundary := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM rules\s+WHERE \(created_at, id\) > \(\$1, \$2\)\s+ORDER BY created_at ASC, id ASC`).
		WithArgs(boundary, "rule-5", 11).
		WillReturnRows(ruleRows())

	p := pagination.Params{
		Cursor:    &pagination.Cursor{CreatedAt: boundary, ID: "rule-5"},
		Limit:     10,
		Direction: pagination.DirectionPrev,
	}
	_, err = repo.ListRules(context.Background(), Filter{}, p)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
