package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/receiptor/internal/artifact"
	"github.com/smallbiznis/receiptor/internal/config"
	"github.com/smallbiznis/receiptor/internal/invoice"
	"github.com/smallbiznis/receiptor/internal/lease"
	"github.com/smallbiznis/receiptor/internal/ledger"
	"github.com/smallbiznis/receiptor/internal/logger"
	"github.com/smallbiznis/receiptor/internal/metrics"
	"github.com/smallbiznis/receiptor/internal/migration"
	"github.com/smallbiznis/receiptor/internal/notification"
	"github.com/smallbiznis/receiptor/internal/order"
	"github.com/smallbiznis/receiptor/internal/payment"
	"github.com/smallbiznis/receiptor/internal/providers/email"
	"github.com/smallbiznis/receiptor/internal/providers/pdf"
	"github.com/smallbiznis/receiptor/internal/receipt"
	"github.com/smallbiznis/receiptor/internal/server"
	"github.com/smallbiznis/receiptor/internal/trigger"
	"github.com/smallbiznis/receiptor/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		metrics.Module,
		lease.Module,

		// Domain
		order.Module,
		payment.Module,
		ledger.Module,
		invoice.Module,
		artifact.Module,
		pdf.Module,
		email.Module,
		notification.Module,
		receipt.Module,
		trigger.Module,

		// Transport
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
