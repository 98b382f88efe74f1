// Package graphdb owns the Neo4j driver. A nil *Client means the graph
// mirror is disabled and every caller must treat graph operations as no-ops.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/fx"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/pkg/logger"
)

var Module = fx.Module("graphdb",
	fx.Provide(NewClient),
)

// Client bundles the driver with the target database name.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// NewClient connects to Neo4j when NEO4J_URI is set. A connection failure at
// startup is logged and disables the graph mirror instead of failing boot.
func NewClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Client {
	log = log.With(logger.Scope("graphdb"))
	if !cfg.Neo4j.Enabled() {
		log.Info("neo4j not configured, graph mirror disabled")
		return nil
	}

	client, err := Connect(context.Background(), cfg.Neo4j)
	if err != nil {
		log.Warn("neo4j unavailable, graph mirror disabled", logger.Error(err))
		return nil
	}

	log.Info("neo4j connected", slog.String("uri", cfg.Neo4j.URI), slog.String("database", cfg.Neo4j.Database))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close(ctx)
		},
	})
	return client
}

// Connect builds a driver and verifies connectivity.
func Connect(ctx context.Context, cfg config.Neo4jConfig) (*Client, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("graphdb: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphdb: verify connectivity: %w", err)
	}

	return &Client{Driver: driver, Database: cfg.Database}, nil
}

// Enabled reports whether c can be used.
func (c *Client) Enabled() bool {
	return c != nil && c.Driver != nil
}

// Close releases the driver.
func (c *Client) Close(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

// Ping verifies the server is reachable. Used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.Driver.VerifyConnectivity(ctx)
}

// Write runs fn in a managed write transaction.
func (c *Client) Write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// Read runs cypher in a managed read transaction and returns all records.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

// RunSchema executes schema statements in auto-commit mode. Every statement
// is attempted; the first failure is returned.
func (c *Client) RunSchema(ctx context.Context, stmts ...string) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	var firstErr error
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("graphdb: schema %q: %w", q, err)
		}
	}
	return firstErr
}

// Exec runs a single statement and discards the result.
func Exec(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}
