package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/domain"
)

// Repo is the record store for opportunities, contracts and execution orders.
// It carries no business rules.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) InsertOpportunity(ctx context.Context, o domain.Opportunity) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO opportunities(id,name,created_at) VALUES (?,?,?)`, o.ID, o.Name, o.CreatedAt)
	return translateConstraint(err)
}

func (r Repo) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	var o domain.Opportunity
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM opportunities WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	return o, err
}

func (r Repo) ListOpportunities(ctx context.Context) ([]domain.Opportunity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM opportunities ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) InsertContract(ctx context.Context, c domain.Contract) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO contracts(id,opportunity_id,title,created_at) VALUES (?,?,?,?)`,
		c.ID, c.OpportunityID, c.Title, c.CreatedAt)
	return translateConstraint(err)
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	err := r.DB.QueryRowContext(ctx, `SELECT id,opportunity_id,title,created_at FROM contracts WHERE id=?`, id).
		Scan(&c.ID, &c.OpportunityID, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c, err
}

// translateConstraint maps unique-constraint violations to ErrDuplicate.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
