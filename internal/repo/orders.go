package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/domain"
)

const orderColumns = `id,order_no,opportunity_id,contract_id,parent_order_id,company_registration_order_id,order_type,status,requires_company_registration,title,notes,planned_start_date,planned_end_date,actual_start_date,actual_end_date,assigned_to,assigned_team,assigned_at,created_by,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.ExecutionOrder, error) {
	var o domain.ExecutionOrder
	var contractID, parentID, regOrderID, title, notes, plannedStart, plannedEnd, actualStart, actualEnd, assignedTo, assignedTeam, assignedAt sql.NullString
	var orderType, status string
	var requiresReg int
	err := row.Scan(&o.ID, &o.OrderNo, &o.OpportunityID, &contractID, &parentID, &regOrderID, &orderType, &status, &requiresReg,
		&title, &notes, &plannedStart, &plannedEnd, &actualStart, &actualEnd, &assignedTo, &assignedTeam, &assignedAt,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.OrderType = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.RequiresCompanyRegistration = requiresReg != 0
	o.ContractID = stringPtr(contractID)
	o.ParentOrderID = stringPtr(parentID)
	o.CompanyRegistrationOrderID = stringPtr(regOrderID)
	o.Title = title.String
	o.Notes = notes.String
	o.PlannedStartDate = stringPtr(plannedStart)
	o.PlannedEndDate = stringPtr(plannedEnd)
	o.ActualStartDate = stringPtr(actualStart)
	o.ActualEndDate = stringPtr(actualEnd)
	o.AssignedTo = stringPtr(assignedTo)
	o.AssignedTeam = stringPtr(assignedTeam)
	o.AssignedAt = stringPtr(assignedAt)
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, tx *sql.Tx, o domain.ExecutionOrder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OrderNo, o.OpportunityID, nullableStringPtr(o.ContractID), nullableStringPtr(o.ParentOrderID), nullableStringPtr(o.CompanyRegistrationOrderID),
		string(o.OrderType), string(o.Status), boolToInt(o.RequiresCompanyRegistration), nullable(o.Title), nullable(o.Notes),
		nullableStringPtr(o.PlannedStartDate), nullableStringPtr(o.PlannedEndDate), nullableStringPtr(o.ActualStartDate), nullableStringPtr(o.ActualEndDate),
		nullableStringPtr(o.AssignedTo), nullableStringPtr(o.AssignedTeam), nullableStringPtr(o.AssignedAt),
		o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	return translateConstraint(err)
}

// UpdateOrder persists the mutable lifecycle and assignment fields.
func (r Repo) UpdateOrder(ctx context.Context, tx *sql.Tx, o domain.ExecutionOrder) error {
	res, err := tx.ExecContext(ctx, `UPDATE execution_orders SET company_registration_order_id=?, status=?, actual_start_date=?, actual_end_date=?, assigned_to=?, assigned_team=?, assigned_at=?, updated_at=? WHERE id=?`,
		nullableStringPtr(o.CompanyRegistrationOrderID), string(o.Status), nullableStringPtr(o.ActualStartDate), nullableStringPtr(o.ActualEndDate),
		nullableStringPtr(o.AssignedTo), nullableStringPtr(o.AssignedTeam), nullableStringPtr(o.AssignedAt), o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// SetOrderStatus changes only status and updated_at.
func (r Repo) SetOrderStatus(ctx context.Context, tx *sql.Tx, id string, status domain.OrderStatus, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE execution_orders SET status=?, updated_at=? WHERE id=?`, string(status), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution order %s: %w", id, ErrNotFound)
	}
	return nil
}

// LockOrder takes a write lock on the order row for the rest of the transaction.
// The no-op update is portable: a row lock on server databases, the database
// write lock on SQLite.
func (r Repo) LockOrder(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE execution_orders SET updated_at=updated_at WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution order %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.ExecutionOrder, error) {
	return getOrder(ctx, r.DB, id)
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.ExecutionOrder, error) {
	return getOrder(ctx, tx, id)
}

func getOrder(ctx context.Context, q queryer, id string) (domain.ExecutionOrder, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM execution_orders WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("execution order %s: %w", id, ErrNotFound)
	}
	return o, err
}

// FindRegistrationOrderTx returns the earliest non-cancelled company
// registration order for an opportunity.
func (r Repo) FindRegistrationOrderTx(ctx context.Context, tx *sql.Tx, opportunityID string) (domain.ExecutionOrder, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM execution_orders
WHERE opportunity_id=? AND order_type=? AND status != ?
ORDER BY created_at ASC, id ASC LIMIT 1`, opportunityID, string(domain.OrderTypeCompanyRegistration), string(domain.OrderCancelled)))
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("registration order for opportunity %s: %w", opportunityID, ErrNotFound)
	}
	return o, err
}

type OrderFilters struct {
	OpportunityID   string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.ExecutionOrder, error) {
	var clauses []string
	var args []any
	if f.OpportunityID != "" {
		clauses = append(clauses, "opportunity_id=?")
		args = append(args, f.OpportunityID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + orderColumns + ` FROM execution_orders ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) CountOrdersByStatus(ctx context.Context, opportunityID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM execution_orders WHERE opportunity_id=? GROUP BY status`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// OrderNoExistsTx reports whether an order number is already taken.
func (r Repo) OrderNoExistsTx(ctx context.Context, tx *sql.Tx, orderNo string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM execution_orders WHERE order_no=? LIMIT 1`, orderNo).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
