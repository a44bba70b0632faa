package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() recondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *recondomain.PaymentReconciliation) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*recondomain.PaymentReconciliation, error) {
	var session recondomain.PaymentReconciliation
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*recondomain.PaymentReconciliation, error) {
	var session recondomain.PaymentReconciliation
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, bank_account_id, period_start, period_end,
		 opening_balance, closing_balance, statement_balance,
		 total_deposits, total_withdrawals, unreconciled_count, discrepancy_amount,
		 status, reconciled_items, statement_file_url, notes,
		 created_by, completed_by, completed_at, approved_by, approved_at,
		 created_at, updated_at
		 FROM payment_reconciliations WHERE org_id = ? AND id = ? FOR UPDATE`,
		orgID,
		id,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, session *recondomain.PaymentReconciliation) error {
	session.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Where("org_id = ?", session.OrgID).
		Save(session).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter recondomain.ListFilter) ([]recondomain.PaymentReconciliation, error) {
	stmt := db.WithContext(ctx).Model(&recondomain.PaymentReconciliation{}).
		Where("org_id = ?", filter.OrgID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.BankAccountID != 0 {
		stmt = stmt.Where("bank_account_id = ?", filter.BankAccountID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var sessions []recondomain.PaymentReconciliation
	err := stmt.Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) ListSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]recondomain.PaymentReconciliation, error) {
	var sessions []recondomain.PaymentReconciliation
	err := db.WithContext(ctx).
		Where("org_id = ? AND created_at >= ?", orgID, since).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
