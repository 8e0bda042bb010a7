package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/artline/internal/asset"
	"github.com/smallbiznis/artline/internal/catalog"
	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	"github.com/smallbiznis/artline/internal/dispatch"
	"github.com/smallbiznis/artline/internal/identity"
	"github.com/smallbiznis/artline/internal/job"
	"github.com/smallbiznis/artline/internal/ledger"
	"github.com/smallbiznis/artline/internal/migration"
	"github.com/smallbiznis/artline/internal/observability"
	"github.com/smallbiznis/artline/internal/pricing"
	"github.com/smallbiznis/artline/internal/provider"
	"github.com/smallbiznis/artline/internal/queue"
	"github.com/smallbiznis/artline/internal/server"
	"github.com/smallbiznis/artline/internal/webhook"
	"github.com/smallbiznis/artline/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		queue.Module,

		// Functional domains
		identity.Module,
		ledger.Module,
		catalog.Module,
		pricing.Module,
		provider.Module,
		job.Module,
		asset.Module,
		webhook.Module,
		dispatch.Module,

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
