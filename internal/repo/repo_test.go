package repo

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (Repo, sqlmock.Sqlmock, *sql.Tx) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return Repo{DB: db}, mock, tx
}

func TestSatisfyDependencyReportsChange(t *testing.T) {
	r, mock, tx := setupMock(t)
	q := regexp.QuoteMeta(`UPDATE execution_order_dependencies SET status=?, satisfied_at=? WHERE id=? AND status != ?`)
	mock.ExpectExec(q).
		WithArgs("satisfied", "2025-06-01T09:30:00Z", "dep-1", "satisfied").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("satisfied", "2025-06-01T09:31:00Z", "dep-1", "satisfied").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := r.SatisfyDependency(context.Background(), tx, "dep-1", "2025-06-01T09:30:00Z")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.SatisfyDependency(context.Background(), tx, "dep-1", "2025-06-01T09:31:00Z")
	require.NoError(t, err)
	assert.False(t, changed, "second satisfy must not touch the row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockOrderMissingRow(t *testing.T) {
	r, mock, tx := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE execution_orders SET updated_at=updated_at WHERE id=?`)).
		WithArgs("eo-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.LockOrder(context.Background(), tx, "eo-404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockDependenciesOnOnlyPending(t *testing.T) {
	r, mock, tx := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE execution_order_dependencies SET status=? WHERE prerequisite_order_id=? AND status=?`)).
		WithArgs("blocked", "eo-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := r.BlockDependenciesOn(context.Background(), tx, "eo-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestNextSequence(t *testing.T) {
	r, mock, tx := setupMock(t)
	mock.ExpectQuery(`INSERT INTO id_sequences`).
		WithArgs("execution_order", "20250601").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	v, err := r.NextSequence(context.Background(), tx, "execution_order", "20250601")
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)
}

func TestGetOpportunityNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`SELECT id,name,created_at FROM opportunities`).
		WithArgs("opp-x").
		WillReturnError(sql.ErrNoRows)

	_, err = Repo{DB: db}.GetOpportunity(context.Background(), "opp-x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranslateConstraint(t *testing.T) {
	assert.NoError(t, translateConstraint(nil))
	err := translateConstraint(errors.New("constraint failed: UNIQUE constraint failed: execution_orders.order_no (2067)"))
	assert.ErrorIs(t, err, ErrDuplicate)
	other := errors.New("disk I/O error")
	assert.Equal(t, other, translateConstraint(other))
}

func TestCompleteRegistrationOnce(t *testing.T) {
	r, mock, tx := setupMock(t)
	update := regexp.QuoteMeta(`UPDATE company_registration_infos SET registration_status=?, completed_at=?, updated_at=? WHERE execution_order_id=? AND registration_status != ?`)
	exists := regexp.QuoteMeta(`SELECT count(*) FROM company_registration_infos WHERE execution_order_id=?`)

	mock.ExpectExec(update).WithArgs("completed", "t1", "t1", "eo-1", "completed").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs("completed", "t2", "t2", "eo-1", "completed").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("eo-1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(update).WithArgs("completed", "t3", "t3", "eo-2", "completed").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("eo-2").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ctx := context.Background()
	changed, err := r.CompleteRegistration(ctx, tx, "eo-1", "t1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.CompleteRegistration(ctx, tx, "eo-1", "t2")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = r.CompleteRegistration(ctx, tx, "eo-2", "t3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
