package invoice

import (
	"github.com/smallbiznis/receiptor/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.numbering",
	fx.Provide(service.NewNumbering),
)
