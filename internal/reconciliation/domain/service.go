package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/recovery"
	"github.com/smallbiznis/meridian/pkg/db/pagination"
)

type Service interface {
	StartSession(ctx context.Context, req StartSessionRequest) (*PaymentReconciliation, error)
	AddReconciledPayment(ctx context.Context, req AddPaymentRequest) (*PaymentReconciliation, error)
	Complete(ctx context.Context, req CompleteRequest) (*PaymentReconciliation, error)
	Approve(ctx context.Context, req ApproveRequest) (*PaymentReconciliation, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Summary(ctx context.Context, windowDays int) (*Summary, error)

	RetryFailedPayment(ctx context.Context, req RetryPaymentRequest) (*RetryPaymentResult, error)
	ExecuteWithIdempotency(ctx context.Context, req IdempotentRequest) (any, bool, error)
}

type StartSessionRequest struct {
	BankAccountID    snowflake.ID `json:"bank_account_id"`
	PeriodStart      time.Time    `json:"period_start"`
	PeriodEnd        time.Time    `json:"period_end"`
	OpeningBalance   int64        `json:"opening_balance"`
	StatementBalance int64        `json:"statement_balance"`
	StatementFileURL *string      `json:"statement_file_url,omitempty"`
}

type AddPaymentRequest struct {
	ReconciliationID snowflake.ID `json:"reconciliation_id"`
	PaymentID        snowflake.ID `json:"payment_id"`
	Notes            string       `json:"notes,omitempty"`
}

type CompleteRequest struct {
	ReconciliationID snowflake.ID `json:"reconciliation_id"`
	Notes            string       `json:"notes,omitempty"`
}

type ApproveRequest struct {
	ReconciliationID snowflake.ID `json:"reconciliation_id"`
	Notes            string       `json:"notes,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	Status        Status
	BankAccountID snowflake.ID
}

type ListResponse struct {
	pagination.PageInfo
	Reconciliations []PaymentReconciliation `json:"reconciliations"`
}

type RetryPaymentRequest struct {
	PaymentID   snowflake.ID `json:"payment_id"`
	MaxAttempts int          `json:"max_attempts,omitempty"`
}

// RetryPaymentResult is the audit-friendly outcome of a recovery-wrapped
// retry: how many attempts ran, where the breaker ended up, and the full
// recovery scope for inspection.
type RetryPaymentResult struct {
	Success             bool                      `json:"success"`
	PaymentID           snowflake.ID              `json:"payment_id"`
	Attempts            int                       `json:"attempts"`
	CircuitBreakerState recovery.BreakerState     `json:"circuit_breaker_state"`
	RecoveryContext     *recovery.RecoveryContext `json:"-"`
}

type IdempotentRequest struct {
	IdempotencyKey string
	Operation      string
	Fn             recovery.Operation
}

var (
	ErrNotFound           = errors.New("reconciliation_not_found")
	ErrNotInProgress      = errors.New("reconciliation_not_in_progress")
	ErrNotCompleted       = errors.New("reconciliation_not_completed")
	ErrInvalidPeriod      = errors.New("invalid_reconciliation_period")
	ErrInvalidIdempotency = errors.New("invalid_idempotency_request")
)
