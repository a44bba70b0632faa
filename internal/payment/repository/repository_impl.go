package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertBankAccount(ctx context.Context, db *gorm.DB, account *paymentdomain.BankAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindBankAccountByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*paymentdomain.BankAccount, error) {
	var account paymentdomain.BankAccount
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *paymentdomain.ManualPayment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaymentByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*paymentdomain.ManualPayment, error) {
	var payment paymentdomain.ManualPayment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, payment *paymentdomain.ManualPayment) error {
	payment.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Where("org_id = ?", payment.OrgID).
		Save(payment).Error
}

func (r *repo) CountUnreconciled(ctx context.Context, db *gorm.DB, orgID, bankAccountID snowflake.ID, periodStart, periodEnd time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&paymentdomain.ManualPayment{}).
		Where("org_id = ? AND bank_account_id = ?", orgID, bankAccountID).
		Where("payment_date >= ? AND payment_date <= ?", periodStart, periodEnd).
		Where("reconciled = ? OR reconciled IS NULL", false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
