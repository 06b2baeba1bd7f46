package repo

import (
	"context"
	"database/sql"

	"orderflow/internal/domain"
)

const itemColumns = `id,execution_order_id,quotation_item_id,product_id,description,quantity,status,assigned_to,created_at,updated_at`

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.ExecutionOrderItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_order_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.ExecutionOrderID, nullableStringPtr(it.QuotationItemID), nullableStringPtr(it.ProductID), it.Description,
		it.Quantity, string(it.Status), nullableStringPtr(it.AssignedTo), it.CreatedAt, it.UpdatedAt)
	return err
}

// MoveItemsStatus moves every item of an order currently in from to status to.
func (r Repo) MoveItemsStatus(ctx context.Context, tx *sql.Tx, orderID string, from, to domain.ItemStatus, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE execution_order_items SET status=?, updated_at=? WHERE execution_order_id=? AND status=?`,
		string(to), now, orderID, string(from))
	return err
}

func (r Repo) ListItems(ctx context.Context, orderID string) ([]domain.ExecutionOrderItem, error) {
	return listItems(ctx, r.DB, orderID)
}

func (r Repo) ListItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.ExecutionOrderItem, error) {
	return listItems(ctx, tx, orderID)
}

func listItems(ctx context.Context, q queryer, orderID string) ([]domain.ExecutionOrderItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+itemColumns+` FROM execution_order_items WHERE execution_order_id=? ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionOrderItem
	for rows.Next() {
		var it domain.ExecutionOrderItem
		var quotationItemID, productID, assignedTo sql.NullString
		var status string
		if err := rows.Scan(&it.ID, &it.ExecutionOrderID, &quotationItemID, &productID, &it.Description, &it.Quantity, &status, &assignedTo, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Status = domain.ItemStatus(status)
		it.QuotationItemID = stringPtr(quotationItemID)
		it.ProductID = stringPtr(productID)
		it.AssignedTo = stringPtr(assignedTo)
		res = append(res, it)
	}
	return res, rows.Err()
}
