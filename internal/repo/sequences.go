package repo

import (
	"context"
	"database/sql"
)

// NextSequence increments and returns the counter for (kind, period).
func (r Repo) NextSequence(ctx context.Context, tx *sql.Tx, kind, period string) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `INSERT INTO id_sequences(kind,period,value) VALUES (?,?,1)
ON CONFLICT(kind,period) DO UPDATE SET value=value+1
RETURNING value`, kind, period).Scan(&v)
	return v, err
}
