package main

import (
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/pkg/logger"
)

// env holds what every subcommand needs: configuration, a logger and a
// database handle. close releases the handle.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	sqldb *sql.DB
	db    *bun.DB
}

func openEnv() (*env, error) {
	log := logger.NewLogger()
	cfg, err := config.NewConfig(log)
	if err != nil {
		return nil, err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN())))
	return &env{
		cfg:   cfg,
		log:   log,
		sqldb: sqldb,
		db:    bun.NewDB(sqldb, pgdialect.New()),
	}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("close database", logger.Error(err))
	}
}
