package tax

import (
	"github.com/smallbiznis/meridian/internal/tax/calculator"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.calculator",
	fx.Provide(calculator.New),
)
