package receipt

import (
	"github.com/smallbiznis/receiptor/internal/receipt/render"
	"github.com/smallbiznis/receiptor/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewOrchestrator),
)
