package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrBankAccountNotFound = errors.New("bank_account_not_found")
	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrInvalidPaymentState = errors.New("invalid_payment_state")
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusReconciled PaymentStatus = "reconciled"
)

type BankAccount struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name          string       `json:"name" gorm:"type:text;not null"`
	BankName      string       `json:"bank_name" gorm:"type:text"`
	AccountNumber string       `json:"account_number" gorm:"type:text;not null"`
	Currency      string       `json:"currency" gorm:"type:text;not null;default:'USD'"`
	IsActive      bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BankAccount) TableName() string { return "bank_accounts" }

// ManualPayment is a bank-account movement recorded outside the automated
// payment flow. Amount is signed minor units: positive for deposits,
// negative (or zero) for withdrawals. The reconciliation service is the only
// writer of the Reconciled* fields.
type ManualPayment struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	BankAccountID snowflake.ID `json:"bank_account_id" gorm:"not null;index"`

	Reference string        `json:"reference" gorm:"type:text"`
	Amount    int64         `json:"amount" gorm:"not null"`
	Currency  string        `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Status    PaymentStatus `json:"status" gorm:"type:text;not null;default:'pending'"`

	PaymentDate time.Time `json:"payment_date" gorm:"not null"`

	Reconciled   bool       `json:"reconciled" gorm:"not null;default:false"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
	ReconciledBy *string    `json:"reconciled_by,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ManualPayment) TableName() string { return "manual_payments" }

type Repository interface {
	InsertBankAccount(ctx context.Context, db *gorm.DB, account *BankAccount) error
	FindBankAccountByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BankAccount, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *ManualPayment) error
	FindPaymentByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ManualPayment, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, payment *ManualPayment) error
	CountUnreconciled(ctx context.Context, db *gorm.DB, orgID, bankAccountID snowflake.ID, periodStart, periodEnd time.Time) (int64, error)
}

// Processor settles a payment against the upstream provider. Implementations
// may fail transiently; callers wrap invocations in retry and circuit-breaker
// guards.
type Processor interface {
	Process(ctx context.Context, payment *ManualPayment) error
}
