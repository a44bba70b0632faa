package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusApproved   Status = "approved"
)

// ReconciledItem is one matched payment inside a session. The list on the
// session is append-only.
type ReconciledItem struct {
	PaymentID    snowflake.ID `json:"payment_id"`
	Reference    string       `json:"reference"`
	Amount       int64        `json:"amount"`
	ReconciledAt time.Time    `json:"reconciled_at"`
	ReconciledBy string       `json:"reconciled_by"`
	Notes        string       `json:"notes,omitempty"`
}

// PaymentReconciliation is one reconciliation session against a bank account
// and statement period. All balances are signed minor units. ClosingBalance
// is derived: opening + deposits - withdrawals, maintained on every payment
// addition. DiscrepancyAmount is computed once at completion as
// closing - statement; positive means recorded deposits exceed the bank
// statement.
type PaymentReconciliation struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	BankAccountID snowflake.ID `json:"bank_account_id" gorm:"not null;index"`

	PeriodStart time.Time `json:"period_start" gorm:"not null"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null"`

	OpeningBalance   int64 `json:"opening_balance" gorm:"not null"`
	ClosingBalance   int64 `json:"closing_balance" gorm:"not null"`
	StatementBalance int64 `json:"statement_balance" gorm:"not null"`

	TotalDeposits     int64 `json:"total_deposits" gorm:"not null;default:0"`
	TotalWithdrawals  int64 `json:"total_withdrawals" gorm:"not null;default:0"`
	UnreconciledCount int64 `json:"unreconciled_count" gorm:"not null;default:0"`
	DiscrepancyAmount int64 `json:"discrepancy_amount" gorm:"not null;default:0"`

	Status Status `json:"status" gorm:"type:text;not null;default:'in_progress';index"`

	ReconciledItems datatypes.JSONSlice[ReconciledItem] `json:"reconciled_items"`

	StatementFileURL *string `json:"statement_file_url,omitempty" gorm:"type:text"`
	Notes            string  `json:"notes,omitempty" gorm:"type:text"`

	CreatedBy   string     `json:"created_by" gorm:"type:text;not null"`
	CompletedBy *string    `json:"completed_by,omitempty" gorm:"type:text"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ApprovedBy  *string    `json:"approved_by,omitempty" gorm:"type:text"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentReconciliation) TableName() string { return "payment_reconciliations" }

// Summary aggregates sessions created within a trailing window.
type Summary struct {
	WindowDays           int              `json:"window_days"`
	TotalSessions        int64            `json:"total_sessions"`
	CountByStatus        map[Status]int64 `json:"count_by_status"`
	TotalDiscrepancy     int64            `json:"total_discrepancy"`
	AverageDiscrepancy   float64          `json:"average_discrepancy"`
	TotalReconciledItems int64            `json:"total_reconciled_items"`
}
