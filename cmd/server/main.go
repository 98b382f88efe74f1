// Package main provides the entry point for the Crate CMDB API server
//
// @title Crate CMDB API
// @version 0.1.0
// @description Configuration management database: CI types and assets, relationships, lifecycles, valuations and a Neo4j graph view.
// @host localhost:3000
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey bearerAuth
// @in header
// @name Authorization
// @description JWT issued by /api/v1/auth/login (format: "Bearer <token>")
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/domain/dashboard"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/domain/health"
	"github.com/tahopetis/crate/domain/lifecycle"
	"github.com/tahopetis/crate/domain/relationships"
	"github.com/tahopetis/crate/domain/scheduler"
	"github.com/tahopetis/crate/domain/tracing"
	"github.com/tahopetis/crate/domain/users"
	"github.com/tahopetis/crate/domain/valuation"
	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/internal/database"
	"github.com/tahopetis/crate/internal/graphdb"
	"github.com/tahopetis/crate/internal/server"
	"github.com/tahopetis/crate/pkg/auth"
	"github.com/tahopetis/crate/pkg/logger"
)

func main() {
	// Load() keeps existing variables; Overload() lets .env.local win.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		graphdb.Module,
		server.Module,
		tracing.Module,

		auth.Module,

		// Domain modules
		health.Module,
		users.Module,
		audit.Module,
		graph.Module,
		ci.Module,
		relationships.Module,
		lifecycle.Module,
		valuation.Module,
		dashboard.Module,

		// Scheduler module (cron-based maintenance tasks)
		scheduler.Module,
	).Run()
}
