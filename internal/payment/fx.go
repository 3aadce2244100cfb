package payment

import (
	"github.com/smallbiznis/pasarku/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.gate",
	fx.Provide(service.NewGate),
)
