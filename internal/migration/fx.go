package migration

import (
	"github.com/smallbiznis/receiptor/internal/config"
	invoicedomain "github.com/smallbiznis/receiptor/internal/invoice/domain"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	paymentdomain "github.com/smallbiznis/receiptor/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned SQL targets postgres. Other dialects are
			// for local development and tests.
			return conn.AutoMigrate(
				&invoicedomain.Series{},
				&orderdomain.OrderType{},
				&orderdomain.Order{},
				&paymentdomain.Payment{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
