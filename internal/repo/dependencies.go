package repo

import (
	"context"
	"database/sql"

	"orderflow/internal/domain"
)

const dependencyColumns = `id,execution_order_id,prerequisite_order_id,dependency_type,status,satisfied_at,created_at`

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.ExecutionOrderDependency) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_order_dependencies(`+dependencyColumns+`) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.ExecutionOrderID, d.PrerequisiteOrderID, string(d.DependencyType), string(d.Status), nullableStringPtr(d.SatisfiedAt), d.CreatedAt)
	return translateConstraint(err)
}

// ListDependencies returns the edges owned by orderID (its prerequisites).
func (r Repo) ListDependencies(ctx context.Context, orderID string) ([]domain.ExecutionOrderDependency, error) {
	return queryDependencies(ctx, r.DB, `WHERE execution_order_id=?`, orderID)
}

func (r Repo) ListDependenciesTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.ExecutionOrderDependency, error) {
	return queryDependencies(ctx, tx, `WHERE execution_order_id=?`, orderID)
}

// ListDependentEdges returns the edges pointing at prerequisiteID.
func (r Repo) ListDependentEdges(ctx context.Context, prerequisiteID string) ([]domain.ExecutionOrderDependency, error) {
	return queryDependencies(ctx, r.DB, `WHERE prerequisite_order_id=?`, prerequisiteID)
}

func (r Repo) ListDependentEdgesTx(ctx context.Context, tx *sql.Tx, prerequisiteID string) ([]domain.ExecutionOrderDependency, error) {
	return queryDependencies(ctx, tx, `WHERE prerequisite_order_id=?`, prerequisiteID)
}

func queryDependencies(ctx context.Context, q queryer, where string, arg string) ([]domain.ExecutionOrderDependency, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+dependencyColumns+` FROM execution_order_dependencies `+where+` ORDER BY created_at ASC, id ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionOrderDependency
	for rows.Next() {
		var d domain.ExecutionOrderDependency
		var depType, status string
		var satisfiedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.ExecutionOrderID, &d.PrerequisiteOrderID, &depType, &status, &satisfiedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.DependencyType = domain.DependencyType(depType)
		d.Status = domain.DependencyStatus(status)
		d.SatisfiedAt = stringPtr(satisfiedAt)
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountUnsatisfiedTx counts the edges of orderID that are not satisfied.
func (r Repo) CountUnsatisfiedTx(ctx context.Context, tx *sql.Tx, orderID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM execution_order_dependencies WHERE execution_order_id=? AND status != ?`,
		orderID, string(domain.DependencySatisfied)).Scan(&n)
	return n, err
}

// SatisfyDependency marks one edge satisfied. Already satisfied edges are left
// untouched so satisfied_at is written exactly once; the return value reports
// whether the row changed.
func (r Repo) SatisfyDependency(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE execution_order_dependencies SET status=?, satisfied_at=? WHERE id=? AND status != ?`,
		string(domain.DependencySatisfied), now, id, string(domain.DependencySatisfied))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BlockDependenciesOn marks pending edges pointing at prerequisiteID as blocked.
func (r Repo) BlockDependenciesOn(ctx context.Context, tx *sql.Tx, prerequisiteID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE execution_order_dependencies SET status=? WHERE prerequisite_order_id=? AND status=?`,
		string(domain.DependencyBlocked), prerequisiteID, string(domain.DependencyPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
