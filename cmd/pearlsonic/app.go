package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/migration"
	"github.com/smallbiznis/pearlsonic/internal/observability"
	"github.com/smallbiznis/pearlsonic/pkg/db"
	"go.uber.org/fx"
)

var nodeID int64

func registerSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return node, nil
}

// infrastructure is shared by every command: config, logging, ids, clock and
// a migrated database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}
