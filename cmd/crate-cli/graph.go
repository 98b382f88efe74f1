package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/internal/graphdb"
	"github.com/tahopetis/crate/pkg/logger"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Maintain the Neo4j projection",
}

var graphRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the graph from PostgreSQL and prune stale nodes and edges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		store, closeGraph, err := e.graphStore(ctx)
		if err != nil {
			return err
		}
		defer closeGraph()

		res, err := graph.NewReconciler(graph.NewSourceRepository(e.db), store, e.cfg, e.log).Rebuild(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var graphStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check Neo4j connectivity and show the sync queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		_, closeGraph, err := e.graphStore(ctx)
		if err != nil {
			return err
		}
		closeGraph()

		stats, err := graph.NewSyncQueue(e.db, e.cfg, e.log).GetStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "neo4j: reachable at %s\n", e.cfg.Neo4j.URI)
		return printJSON(cmd, stats)
	},
}

// graphStore connects to Neo4j. A missing NEO4J_URI is an error here, unlike
// in the server where the graph is optional.
func (e *env) graphStore(ctx context.Context) (*graph.Store, func(), error) {
	if !e.cfg.Neo4j.Enabled() {
		return nil, nil, errors.New("NEO4J_URI is not set")
	}
	client, err := graphdb.Connect(ctx, e.cfg.Neo4j)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(context.Background()); err != nil {
			e.log.Warn("close neo4j driver", logger.Error(err))
		}
	}
	return graph.NewStore(client), closeFn, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	graphCmd.AddCommand(graphRebuildCmd, graphStatusCmd)
	rootCmd.AddCommand(graphCmd)
}
