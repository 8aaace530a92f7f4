package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/escrow/internal/audit"
	"github.com/smallbiznis/escrow/internal/authorization"
	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/migration"
	"github.com/smallbiznis/escrow/internal/observability/logger"
	"github.com/smallbiznis/escrow/internal/observability/tracing"
	"github.com/smallbiznis/escrow/internal/order"
	"github.com/smallbiznis/escrow/internal/platform"
	"github.com/smallbiznis/escrow/internal/refund"
	"github.com/smallbiznis/escrow/internal/seed"
	"github.com/smallbiznis/escrow/internal/server"
	"github.com/smallbiznis/escrow/internal/settlement"
	"github.com/smallbiznis/escrow/internal/transaction"
	"github.com/smallbiznis/escrow/internal/wallet"
	"github.com/smallbiznis/escrow/internal/withdrawal"
	"github.com/smallbiznis/escrow/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		tracing.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsurePlatformConfig(conn)
		}),

		events.Module,
		audit.Module,
		authorization.Module,
		platform.Module,
		wallet.Module,
		order.Module,
		transaction.Module,
		refund.Module,
		withdrawal.Module,
		settlement.Module,
		server.Module,
	)
	app.Run()
}
