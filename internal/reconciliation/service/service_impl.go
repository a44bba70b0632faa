package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"github.com/smallbiznis/meridian/internal/recovery"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        recondomain.Repository
	PaymentRepo paymentdomain.Repository
	Processor   paymentdomain.Processor
	AuditSvc    auditdomain.Service
	Breaker     *recovery.CircuitBreaker
	IdemMgr     *recovery.IdempotencyManager
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.RecoveryConfig
	repo        recondomain.Repository
	paymentRepo paymentdomain.Repository
	processor   paymentdomain.Processor
	auditSvc    auditdomain.Service
	breaker     *recovery.CircuitBreaker
	idemMgr     *recovery.IdempotencyManager
}

func New(p Params) recondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg.Recovery,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		processor:   p.Processor,
		auditSvc:    p.AuditSvc,
		breaker:     p.Breaker,
		idemMgr:     p.IdemMgr,
	}
}

// StartSession opens a reconciliation session against an existing bank
// account. The closing balance starts at the opening balance with zeroed
// running totals.
func (s *Service) StartSession(ctx context.Context, req recondomain.StartSessionRequest) (*recondomain.PaymentReconciliation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, fmt.Errorf("%w: period_end must be after period_start", recondomain.ErrInvalidPeriod)
	}

	account, err := s.paymentRepo.FindBankAccountByID(ctx, s.db, orgID, req.BankAccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: bank account not found", paymentdomain.ErrBankAccountNotFound)
	}

	now := s.clock.Now()
	session := &recondomain.PaymentReconciliation{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		BankAccountID:    req.BankAccountID,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		OpeningBalance:   req.OpeningBalance,
		ClosingBalance:   req.OpeningBalance,
		StatementBalance: req.StatementBalance,
		Status:           recondomain.StatusInProgress,
		ReconciledItems:  []recondomain.ReconciledItem{},
		StatementFileURL: req.StatementFileURL,
		CreatedBy:        orgcontext.ActorIDFromContext(ctx),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}

	if err := s.recordAudit(ctx, orgID, "reconciliation.started", session.ID, map[string]any{
		"bank_account_id":   req.BankAccountID.String(),
		"opening_balance":   req.OpeningBalance,
		"statement_balance": req.StatementBalance,
	}); err != nil {
		return nil, err
	}

	s.log.Info("reconciliation session started",
		zap.String("reconciliation_id", session.ID.String()),
		zap.String("bank_account_id", req.BankAccountID.String()),
	)
	return session, nil
}

// AddReconciledPayment matches one payment into the session, marks the
// payment reconciled and maintains the running totals. Runs in a transaction
// with the session row locked so concurrent additions cannot lose updates.
// The balance invariant holds after every call:
// closing = opening + deposits - withdrawals.
func (s *Service) AddReconciledPayment(ctx context.Context, req recondomain.AddPaymentRequest) (*recondomain.PaymentReconciliation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	actor := orgcontext.ActorIDFromContext(ctx)
	now := s.clock.Now()

	var updated *recondomain.PaymentReconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, req.ReconciliationID)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("%w: reconciliation not found", recondomain.ErrNotFound)
		}
		if session.Status != recondomain.StatusInProgress {
			return fmt.Errorf("%w: session is %s, not in progress", recondomain.ErrNotInProgress, session.Status)
		}

		payment, err := s.paymentRepo.FindPaymentByID(ctx, tx, orgID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("%w: payment not found", paymentdomain.ErrPaymentNotFound)
		}
		if payment.Reconciled {
			return fmt.Errorf("%w: payment already reconciled", paymentdomain.ErrInvalidPaymentState)
		}

		payment.Reconciled = true
		payment.ReconciledAt = &now
		payment.Status = paymentdomain.PaymentStatusReconciled
		if actor != "" {
			payment.ReconciledBy = &actor
		}
		if err := s.paymentRepo.UpdatePayment(ctx, tx, payment); err != nil {
			return err
		}

		if payment.Amount > 0 {
			session.TotalDeposits += payment.Amount
		} else {
			session.TotalWithdrawals += -payment.Amount
		}
		session.ClosingBalance = session.OpeningBalance + session.TotalDeposits - session.TotalWithdrawals
		session.ReconciledItems = append(session.ReconciledItems, recondomain.ReconciledItem{
			PaymentID:    payment.ID,
			Reference:    payment.Reference,
			Amount:       payment.Amount,
			ReconciledAt: now,
			ReconciledBy: actor,
			Notes:        strings.TrimSpace(req.Notes),
		})

		if err := s.repo.Update(ctx, tx, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordAudit(ctx, orgID, "reconciliation.payment_added", updated.ID, map[string]any{
		"payment_id":      req.PaymentID.String(),
		"closing_balance": updated.ClosingBalance,
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// Complete closes an in-progress session: counts payments in the period
// still unreconciled, computes the signed discrepancy against the statement
// and transitions to completed. Completion notes append to existing notes.
func (s *Service) Complete(ctx context.Context, req recondomain.CompleteRequest) (*recondomain.PaymentReconciliation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}

	session, err := s.repo.FindByID(ctx, s.db, orgID, req.ReconciliationID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: reconciliation not found", recondomain.ErrNotFound)
	}
	if session.Status != recondomain.StatusInProgress {
		return nil, fmt.Errorf("%w: session is %s, not in progress", recondomain.ErrNotInProgress, session.Status)
	}

	unreconciled, err := s.paymentRepo.CountUnreconciled(ctx, s.db, orgID, session.BankAccountID, session.PeriodStart, session.PeriodEnd)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	actor := orgcontext.ActorIDFromContext(ctx)

	session.UnreconciledCount = unreconciled
	session.DiscrepancyAmount = session.ClosingBalance - session.StatementBalance
	session.Status = recondomain.StatusCompleted
	session.CompletedAt = &now
	if actor != "" {
		session.CompletedBy = &actor
	}
	session.Notes = appendNotes(session.Notes, req.Notes)

	if err := s.repo.Update(ctx, s.db, session); err != nil {
		return nil, err
	}

	if err := s.recordAudit(ctx, orgID, "reconciliation.completed", session.ID, map[string]any{
		"total_deposits":     session.TotalDeposits,
		"total_withdrawals":  session.TotalWithdrawals,
		"discrepancy_amount": session.DiscrepancyAmount,
		"unreconciled_count": session.UnreconciledCount,
	}); err != nil {
		return nil, err
	}

	return session, nil
}

// Approve transitions a completed session to approved. No transition leads
// back out of approved.
func (s *Service) Approve(ctx context.Context, req recondomain.ApproveRequest) (*recondomain.PaymentReconciliation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}

	session, err := s.repo.FindByID(ctx, s.db, orgID, req.ReconciliationID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: reconciliation not found", recondomain.ErrNotFound)
	}
	if session.Status != recondomain.StatusCompleted {
		return nil, fmt.Errorf("%w: session must be completed before approval", recondomain.ErrNotCompleted)
	}

	now := s.clock.Now()
	actor := orgcontext.ActorIDFromContext(ctx)

	session.Status = recondomain.StatusApproved
	session.ApprovedAt = &now
	if actor != "" {
		session.ApprovedBy = &actor
	}
	session.Notes = appendNotes(session.Notes, req.Notes)

	if err := s.repo.Update(ctx, s.db, session); err != nil {
		return nil, err
	}

	if err := s.recordAudit(ctx, orgID, "reconciliation.approved", session.ID, map[string]any{
		"discrepancy_amount": session.DiscrepancyAmount,
	}); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *Service) recordAudit(ctx context.Context, orgID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		ActorID:    orgcontext.ActorIDFromContext(ctx),
		ActorType:  auditdomain.ActorTypeUser,
		Action:     action,
		TargetType: "payment_reconciliation",
		TargetID:   targetID.String(),
		Metadata:   metadata,
	})
}

func appendNotes(existing, added string) string {
	added = strings.TrimSpace(added)
	if added == "" {
		return existing
	}
	if existing == "" {
		return added
	}
	return existing + "\n" + added
}
