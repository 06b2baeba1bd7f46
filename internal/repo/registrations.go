package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/domain"
)

const registrationColumns = `id,execution_order_id,company_name,nib,npwp,akta_number,sk_kemenkumham,registration_status,completed_at,created_at,updated_at`

func (r Repo) InsertRegistration(ctx context.Context, tx *sql.Tx, info domain.CompanyRegistrationInfo) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO company_registration_infos(`+registrationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		info.ID, info.ExecutionOrderID, info.CompanyName, nullableStringPtr(info.NIB), nullableStringPtr(info.NPWP),
		nullableStringPtr(info.AktaNumber), nullableStringPtr(info.SKKemenkumham), info.RegistrationStatus,
		nullableStringPtr(info.CompletedAt), info.CreatedAt, info.UpdatedAt)
	return translateConstraint(err)
}

// CompleteRegistration marks the record completed once and reports whether the
// row changed. A missing record is ErrNotFound.
func (r Repo) CompleteRegistration(ctx context.Context, tx *sql.Tx, orderID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE company_registration_infos SET registration_status=?, completed_at=?, updated_at=? WHERE execution_order_id=? AND registration_status != ?`,
		domain.RegistrationCompleted, now, now, orderID, domain.RegistrationCompleted)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT count(*) FROM company_registration_infos WHERE execution_order_id=?`, orderID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, fmt.Errorf("registration for order %s: %w", orderID, ErrNotFound)
	}
	return false, nil
}

func (r Repo) GetRegistration(ctx context.Context, orderID string) (domain.CompanyRegistrationInfo, error) {
	return getRegistration(ctx, r.DB, orderID)
}

func (r Repo) GetRegistrationTx(ctx context.Context, tx *sql.Tx, orderID string) (domain.CompanyRegistrationInfo, error) {
	return getRegistration(ctx, tx, orderID)
}

func getRegistration(ctx context.Context, q queryer, orderID string) (domain.CompanyRegistrationInfo, error) {
	var info domain.CompanyRegistrationInfo
	var nib, npwp, akta, sk, completedAt sql.NullString
	err := q.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM company_registration_infos WHERE execution_order_id=?`, orderID).
		Scan(&info.ID, &info.ExecutionOrderID, &info.CompanyName, &nib, &npwp, &akta, &sk, &info.RegistrationStatus, &completedAt, &info.CreatedAt, &info.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("registration for order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return info, err
	}
	info.NIB = stringPtr(nib)
	info.NPWP = stringPtr(npwp)
	info.AktaNumber = stringPtr(akta)
	info.SKKemenkumham = stringPtr(sk)
	info.CompletedAt = stringPtr(completedAt)
	return info, nil
}
