package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	auditrepo "github.com/smallbiznis/meridian/internal/audit/repository"
	auditservice "github.com/smallbiznis/meridian/internal/audit/service"
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/meridian/internal/payment/repository"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	reconrepo "github.com/smallbiznis/meridian/internal/reconciliation/repository"
	"github.com/smallbiznis/meridian/internal/recovery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgID = snowflake.ID(3001)

// lockFreeRepo routes the FOR UPDATE lookup through the plain lookup;
// sqlite has no row locks and serializes writers anyway.
type lockFreeRepo struct {
	recondomain.Repository
}

func (r lockFreeRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*recondomain.PaymentReconciliation, error) {
	return r.Repository.FindByID(ctx, tx, orgID, id)
}

// flakyProcessor fails a configured number of times before succeeding.
type flakyProcessor struct {
	failures int
	calls    int
}

func (p *flakyProcessor) Process(ctx context.Context, payment *paymentdomain.ManualPayment) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("provider unavailable")
	}
	payment.Status = paymentdomain.PaymentStatusCompleted
	return nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	clock     *clock.FakeClock
	node      *snowflake.Node
	processor *flakyProcessor
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&recondomain.PaymentReconciliation{},
		&paymentdomain.BankAccount{},
		&paymentdomain.ManualPayment{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	cfg := config.Config{Recovery: config.RecoveryConfig{
		MaxAttempts:      3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		FailureThreshold: 5,
		RecoveryTimeout:  time.Minute,
		IdempotencyTTL:   time.Hour,
	}}

	processor := &flakyProcessor{}
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Cfg:         cfg,
		Repo:        lockFreeRepo{reconrepo.Provide()},
		PaymentRepo: paymentrepo.Provide(),
		Processor:   processor,
		AuditSvc:    auditSvc,
		Breaker:     recovery.NewCircuitBreaker(cfg.Recovery.FailureThreshold, cfg.Recovery.RecoveryTimeout, fake),
		IdemMgr:     recovery.NewIdempotencyManager(cfg.Recovery.IdempotencyTTL),
	}).(*Service)

	return &fixture{svc: svc, db: db, clock: fake, node: node, processor: processor}
}

func orgCtx() context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), testOrgID)
	return orgcontext.WithActorID(ctx, "user_42")
}

func (f *fixture) seedBankAccount(t *testing.T) *paymentdomain.BankAccount {
	t.Helper()
	account := &paymentdomain.BankAccount{
		ID:            f.node.Generate(),
		OrgID:         testOrgID,
		Name:          "Operating",
		BankName:      "First National",
		AccountNumber: "000123",
		Currency:      "USD",
		IsActive:      true,
	}
	require.NoError(t, f.db.Create(account).Error)
	return account
}

func (f *fixture) seedPayment(t *testing.T, accountID snowflake.ID, amount int64, status paymentdomain.PaymentStatus) *paymentdomain.ManualPayment {
	t.Helper()
	payment := &paymentdomain.ManualPayment{
		ID:            f.node.Generate(),
		OrgID:         testOrgID,
		BankAccountID: accountID,
		Reference:     "ref-" + f.node.Generate().String(),
		Amount:        amount,
		Currency:      "USD",
		Status:        status,
		PaymentDate:   f.clock.Now(),
	}
	require.NoError(t, f.db.Create(payment).Error)
	return payment
}

func (f *fixture) startSession(t *testing.T, accountID snowflake.ID, opening, statement int64) *recondomain.PaymentReconciliation {
	t.Helper()
	session, err := f.svc.StartSession(orgCtx(), recondomain.StartSessionRequest{
		BankAccountID:    accountID,
		PeriodStart:      f.clock.Now().Add(-24 * time.Hour),
		PeriodEnd:        f.clock.Now().Add(24 * time.Hour),
		OpeningBalance:   opening,
		StatementBalance: statement,
	})
	require.NoError(t, err)
	return session
}

func TestStartSessionRequiresBankAccount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.StartSession(orgCtx(), recondomain.StartSessionRequest{
		BankAccountID:    f.node.Generate(),
		PeriodStart:      f.clock.Now(),
		PeriodEnd:        f.clock.Now().Add(time.Hour),
		OpeningBalance:   1000,
		StatementBalance: 1000,
	})
	require.ErrorIs(t, err, paymentdomain.ErrBankAccountNotFound)
}

func TestStartSessionRejectsInvertedPeriod(t *testing.T) {
	f := setup(t)
	account := f.seedBankAccount(t)

	_, err := f.svc.StartSession(orgCtx(), recondomain.StartSessionRequest{
		BankAccountID: account.ID,
		PeriodStart:   f.clock.Now(),
		PeriodEnd:     f.clock.Now().Add(-time.Hour),
	})
	require.ErrorIs(t, err, recondomain.ErrInvalidPeriod)
}

func TestEndToEndReconciliation(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)

	// Opening 1000.00, statement 1300.00, two deposits 100.00 and 200.00.
	session := f.startSession(t, account.ID, 100000, 130000)
	require.Equal(t, recondomain.StatusInProgress, session.Status)
	require.Equal(t, int64(100000), session.ClosingBalance)

	p1 := f.seedPayment(t, account.ID, 10000, paymentdomain.PaymentStatusCompleted)
	p2 := f.seedPayment(t, account.ID, 20000, paymentdomain.PaymentStatusCompleted)

	session, err := f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        p1.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(110000), session.ClosingBalance)

	session, err = f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        p2.ID,
		Notes:            "wire transfer",
	})
	require.NoError(t, err)
	require.Equal(t, int64(130000), session.ClosingBalance)
	require.Equal(t, int64(30000), session.TotalDeposits)
	require.Len(t, session.ReconciledItems, 2)
	require.Equal(t, "wire transfer", session.ReconciledItems[1].Notes)

	// The payment rows carry the reconciliation marks.
	var reloaded paymentdomain.ManualPayment
	require.NoError(t, f.db.First(&reloaded, "id = ?", p1.ID).Error)
	require.True(t, reloaded.Reconciled)
	require.Equal(t, paymentdomain.PaymentStatusReconciled, reloaded.Status)
	require.NotNil(t, reloaded.ReconciledBy)
	require.Equal(t, "user_42", *reloaded.ReconciledBy)

	session, err = f.svc.Complete(ctx, recondomain.CompleteRequest{
		ReconciliationID: session.ID,
		Notes:            "month-end close",
	})
	require.NoError(t, err)
	require.Equal(t, recondomain.StatusCompleted, session.Status)
	require.Equal(t, int64(0), session.DiscrepancyAmount)
	require.Equal(t, int64(0), session.UnreconciledCount)
	require.NotNil(t, session.CompletedAt)
	require.Equal(t, "month-end close", session.Notes)

	session, err = f.svc.Approve(ctx, recondomain.ApproveRequest{
		ReconciliationID: session.ID,
		Notes:            "looks good",
	})
	require.NoError(t, err)
	require.Equal(t, recondomain.StatusApproved, session.Status)
	require.NotNil(t, session.ApprovedAt)
	require.Equal(t, "month-end close\nlooks good", session.Notes)

	// started, two payment_added, completed, approved.
	var auditCount int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Count(&auditCount).Error)
	require.Equal(t, int64(5), auditCount)

	var addedCount int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "reconciliation.payment_added").
		Count(&addedCount).Error)
	require.Equal(t, int64(2), addedCount)
}

func TestAddReconciledPaymentRejectsAlreadyReconciled(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	session := f.startSession(t, account.ID, 50000, 50000)
	payment := f.seedPayment(t, account.ID, 10000, paymentdomain.PaymentStatusCompleted)

	session, err := f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        payment.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(10000), session.TotalDeposits)

	_, err = f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        payment.ID,
	})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPaymentState)
	require.Contains(t, err.Error(), "already reconciled")

	// Totals and items are unchanged by the rejected call.
	reloaded, err := f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.NoError(t, err)
	require.Equal(t, int64(10000), reloaded.TotalDeposits)
	require.Len(t, reloaded.ReconciledItems, 1)
}

func TestBalanceInvariantWithWithdrawals(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	session := f.startSession(t, account.ID, 50000, 45000)

	amounts := []int64{10000, -3000, 2500, -7500, 0}
	for _, amount := range amounts {
		payment := f.seedPayment(t, account.ID, amount, paymentdomain.PaymentStatusCompleted)
		var err error
		session, err = f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
			ReconciliationID: session.ID,
			PaymentID:        payment.ID,
		})
		require.NoError(t, err)
		require.Equal(t,
			session.OpeningBalance+session.TotalDeposits-session.TotalWithdrawals,
			session.ClosingBalance)
	}

	require.Equal(t, int64(12500), session.TotalDeposits)
	require.Equal(t, int64(10500), session.TotalWithdrawals)
	require.Equal(t, int64(52000), session.ClosingBalance)

	session, err := f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.NoError(t, err)
	// 52000 - 45000: recorded deposits exceed the statement.
	require.Equal(t, int64(7000), session.DiscrepancyAmount)
}

func TestStateGuards(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	session := f.startSession(t, account.ID, 1000, 1000)

	// Approve before complete.
	_, err := f.svc.Approve(ctx, recondomain.ApproveRequest{ReconciliationID: session.ID})
	require.ErrorIs(t, err, recondomain.ErrNotCompleted)
	require.Contains(t, err.Error(), "must be completed before approval")

	_, err = f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.NoError(t, err)

	// Complete twice.
	_, err = f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.ErrorIs(t, err, recondomain.ErrNotInProgress)
	require.Contains(t, err.Error(), "not in progress")

	// Add payment after completion.
	payment := f.seedPayment(t, account.ID, 500, paymentdomain.PaymentStatusCompleted)
	_, err = f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        payment.ID,
	})
	require.ErrorIs(t, err, recondomain.ErrNotInProgress)

	_, err = f.svc.Approve(ctx, recondomain.ApproveRequest{ReconciliationID: session.ID})
	require.NoError(t, err)

	// No transition out of approved.
	_, err = f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.ErrorIs(t, err, recondomain.ErrNotInProgress)
}

func TestCompleteCountsUnreconciledPayments(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	session := f.startSession(t, account.ID, 1000, 1000)

	reconciled := f.seedPayment(t, account.ID, 100, paymentdomain.PaymentStatusCompleted)
	f.seedPayment(t, account.ID, 200, paymentdomain.PaymentStatusPending)
	f.seedPayment(t, account.ID, 300, paymentdomain.PaymentStatusPending)

	_, err := f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: session.ID,
		PaymentID:        reconciled.ID,
	})
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), completed.UnreconciledCount)
}

func TestSessionsAreOrgScoped(t *testing.T) {
	f := setup(t)
	account := f.seedBankAccount(t)
	session := f.startSession(t, account.ID, 1000, 1000)

	otherCtx := orgcontext.WithOrgID(context.Background(), snowflake.ID(4444))
	_, err := f.svc.Complete(otherCtx, recondomain.CompleteRequest{ReconciliationID: session.ID})
	require.ErrorIs(t, err, recondomain.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	f := setup(t)
	account := f.seedBankAccount(t)

	for i := 0; i < 3; i++ {
		f.startSession(t, account.ID, 1000, 1000)
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.List(orgCtx(), recondomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Reconciliations, 3)
	require.False(t, resp.HasMore)

	req := recondomain.ListRequest{}
	req.PageSize = 2
	resp, err = f.svc.List(orgCtx(), req)
	require.NoError(t, err)
	require.Len(t, resp.Reconciliations, 2)
	require.True(t, resp.HasMore)
	require.NotEmpty(t, resp.NextPageToken)

	req.PageToken = resp.NextPageToken
	resp, err = f.svc.List(orgCtx(), req)
	require.NoError(t, err)
	require.Len(t, resp.Reconciliations, 1)
	require.False(t, resp.HasMore)
}

func TestSummary(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)

	completed := f.startSession(t, account.ID, 1000, 900)
	payment := f.seedPayment(t, account.ID, 50, paymentdomain.PaymentStatusCompleted)
	_, err := f.svc.AddReconciledPayment(ctx, recondomain.AddPaymentRequest{
		ReconciliationID: completed.ID,
		PaymentID:        payment.ID,
	})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, recondomain.CompleteRequest{ReconciliationID: completed.ID})
	require.NoError(t, err)

	f.startSession(t, account.ID, 2000, 2000)

	summary, err := f.svc.Summary(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.TotalSessions)
	require.Equal(t, int64(1), summary.CountByStatus[recondomain.StatusCompleted])
	require.Equal(t, int64(1), summary.CountByStatus[recondomain.StatusInProgress])
	require.Equal(t, int64(1), summary.TotalReconciledItems)
	// |1050 - 900| from the completed session only.
	require.Equal(t, int64(150), summary.TotalDiscrepancy)
	require.InDelta(t, 150.0, summary.AverageDiscrepancy, 0.001)
}

func TestRetryFailedPaymentRecovers(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	payment := f.seedPayment(t, account.ID, 1000, paymentdomain.PaymentStatusFailed)

	f.processor.failures = 2

	result, err := f.svc.RetryFailedPayment(ctx, recondomain.RetryPaymentRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, payment.ID, result.PaymentID)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, recovery.StateClosed, result.CircuitBreakerState)

	attempts := result.RecoveryContext.Attempts()
	require.Len(t, attempts, 3)
	require.Equal(t, recovery.OutcomeFailure, attempts[0].Outcome)
	require.Equal(t, recovery.OutcomeSuccess, attempts[2].Outcome)

	// Success is audited with the attempt count.
	var log auditdomain.AuditLog
	require.NoError(t, f.db.First(&log, "action = ?", "payment.retry_succeeded").Error)
}

func TestRetryFailedPaymentExhausted(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()
	account := f.seedBankAccount(t)
	payment := f.seedPayment(t, account.ID, 1000, paymentdomain.PaymentStatusFailed)

	f.processor.failures = 10

	result, err := f.svc.RetryFailedPayment(ctx, recondomain.RetryPaymentRequest{
		PaymentID:   payment.ID,
		MaxAttempts: 2,
	})
	require.Error(t, err)
	require.False(t, result.Success)
	require.Equal(t, 2, result.Attempts)
	require.Equal(t, 2, f.processor.calls)
}

func TestRetryFailedPaymentUnknownPayment(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RetryFailedPayment(orgCtx(), recondomain.RetryPaymentRequest{
		PaymentID: f.node.Generate(),
	})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
	require.Equal(t, 0, f.processor.calls)
}

func TestExecuteWithIdempotency(t *testing.T) {
	f := setup(t)
	ctx := orgCtx()

	executions := 0
	fn := func(ctx context.Context) (any, error) {
		executions++
		return "receipt-7", nil
	}

	result, cached, err := f.svc.ExecuteWithIdempotency(ctx, recondomain.IdempotentRequest{
		IdempotencyKey: "op-123",
		Operation:      "close_books",
		Fn:             fn,
	})
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, "receipt-7", result)

	result, cached, err = f.svc.ExecuteWithIdempotency(ctx, recondomain.IdempotentRequest{
		IdempotencyKey: "op-123",
		Operation:      "close_books",
		Fn:             fn,
	})
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, "receipt-7", result)
	require.Equal(t, 1, executions)

	// Every call is audited, hit or miss.
	var auditCount int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "reconciliation.idempotent_execution").
		Count(&auditCount).Error)
	require.Equal(t, int64(2), auditCount)

	_, _, err = f.svc.ExecuteWithIdempotency(ctx, recondomain.IdempotentRequest{})
	require.ErrorIs(t, err, recondomain.ErrInvalidIdempotency)
}
