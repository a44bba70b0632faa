package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/meridian/internal/clock"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProcessorParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  paymentdomain.Repository
}

// processor settles manual payments directly against storage: a payment in
// pending or failed state moves to completed. Provider-backed settlement
// would slot in behind the same interface.
type processor struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  paymentdomain.Repository
}

func NewProcessor(p ProcessorParams) paymentdomain.Processor {
	return &processor{
		db:    p.DB,
		log:   p.Log.Named("payment.processor"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (p *processor) Process(ctx context.Context, payment *paymentdomain.ManualPayment) error {
	switch payment.Status {
	case paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusFailed:
	default:
		return fmt.Errorf("%w: payment %s is %s, expected pending or failed",
			paymentdomain.ErrInvalidPaymentState, payment.ID, payment.Status)
	}

	payment.Status = paymentdomain.PaymentStatusCompleted
	payment.UpdatedAt = p.clock.Now()
	if err := p.repo.UpdatePayment(ctx, p.db, payment); err != nil {
		return err
	}

	p.log.Info("payment processed",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount", payment.Amount),
	)
	return nil
}
