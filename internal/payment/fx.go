package payment

import (
	"github.com/smallbiznis/receiptor/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.repository",
	fx.Provide(repository.Provide),
)
