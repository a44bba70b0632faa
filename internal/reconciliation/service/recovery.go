package service

import (
	"context"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	"github.com/smallbiznis/meridian/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"github.com/smallbiznis/meridian/internal/recovery"
	"go.uber.org/zap"
)

// RetryFailedPayment reprocesses a payment under the full recovery stack:
// each attempt goes through the circuit breaker, transient failures retry
// with backoff, and every attempt lands in a recovery context surfaced in
// the result. The payment must resolve before any recovery machinery runs.
func (s *Service) RetryFailedPayment(ctx context.Context, req recondomain.RetryPaymentRequest) (*recondomain.RetryPaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}

	payment, err := s.paymentRepo.FindPaymentByID(ctx, s.db, orgID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment not found", paymentdomain.ErrPaymentNotFound)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}
	retry := recovery.NewRetry(maxAttempts, recovery.NewExponentialBackoff(s.cfg.BaseDelay, s.cfg.MaxDelay))

	rc := recovery.NewRecoveryContext("payment_retry:"+payment.ID.String(), s.clock)
	rc.SetState("payment_id", payment.ID.String())

	_, execErr := retry.Execute(ctx, func(ctx context.Context) (any, error) {
		result, err := s.breaker.Call(ctx, func(ctx context.Context) (any, error) {
			return nil, s.processor.Process(ctx, payment)
		})
		rc.RecordAttempt(err)
		return result, err
	})

	result := &recondomain.RetryPaymentResult{
		Success:             execErr == nil,
		PaymentID:           payment.ID,
		Attempts:            len(rc.Attempts()),
		CircuitBreakerState: s.breaker.State(),
		RecoveryContext:     rc,
	}

	if execErr != nil {
		s.log.Warn("payment retry exhausted",
			zap.String("payment_id", payment.ID.String()),
			zap.Int("attempts", result.Attempts),
			zap.Error(execErr),
		)
		return result, execErr
	}

	if err := s.recordAudit(ctx, orgID, "payment.retry_succeeded", payment.ID, map[string]any{
		"attempts":              result.Attempts,
		"circuit_breaker_state": string(result.CircuitBreakerState),
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// ExecuteWithIdempotency runs fn at most once per idempotency key and logs
// an audit entry on every call, cache hit or not. The boolean reports
// whether the result was served from a previous execution.
func (s *Service) ExecuteWithIdempotency(ctx context.Context, req recondomain.IdempotentRequest) (any, bool, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, false, auditdomain.ErrInvalidOrganization
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" || req.Fn == nil {
		return nil, false, fmt.Errorf("%w: idempotency key and operation are required", recondomain.ErrInvalidIdempotency)
	}

	result, cached, err := s.idemMgr.EnsureIdempotent(ctx, key, req.Fn)

	auditErr := s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		ActorID:    orgcontext.ActorIDFromContext(ctx),
		ActorType:  auditdomain.ActorTypeUser,
		Action:     "reconciliation.idempotent_execution",
		TargetType: "idempotency_key",
		TargetID:   key,
		Metadata: map[string]any{
			"operation": req.Operation,
			"cached":    cached,
		},
	})
	if auditErr != nil {
		s.log.Warn("failed to audit idempotent execution",
			zap.String("idempotency_key", key),
			zap.Error(auditErr),
		)
	}

	return result, cached, err
}
