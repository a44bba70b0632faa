package reconciliation

import (
	"github.com/smallbiznis/meridian/internal/reconciliation/repository"
	"github.com/smallbiznis/meridian/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
