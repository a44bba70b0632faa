package payment

import (
	"github.com/smallbiznis/meridian/internal/payment/repository"
	"github.com/smallbiznis/meridian/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		repository.Provide,
		service.NewProcessor,
	),
)
