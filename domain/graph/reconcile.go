package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/pkg/logger"
)

// reconcileTarget is the part of Store a rebuild needs.
type reconcileTarget interface {
	Projection
	AssetNodeIDs(ctx context.Context) ([]string, error)
	EdgeIDs(ctx context.Context) ([]string, error)
	DeleteAssetNodes(ctx context.Context, ids []string) error
	DeleteEdgesByID(ctx context.Context, ids []string) error
}

// RebuildResult summarizes one reconciliation pass.
type RebuildResult struct {
	NodesUpserted int           `json:"nodes_upserted"`
	EdgesMerged   int           `json:"edges_merged"`
	NodesRemoved  int           `json:"nodes_removed"`
	EdgesRemoved  int           `json:"edges_removed"`
	Failures      int           `json:"failures"`
	Duration      time.Duration `json:"duration"`
}

// Reconciler rebuilds the graph projection from PostgreSQL.
type Reconciler struct {
	source   Source
	target   reconcileTarget
	pageSize int
	log      *slog.Logger
}

// NewReconciler creates a new graph reconciler
func NewReconciler(source Source, store *Store, cfg *config.Config, log *slog.Logger) *Reconciler {
	return newReconciler(source, store, cfg.GraphSync.ReconcilePage, log)
}

func newReconciler(source Source, target reconcileTarget, pageSize int, log *slog.Logger) *Reconciler {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Reconciler{
		source:   source,
		target:   target,
		pageSize: pageSize,
		log:      log.With(logger.Scope("graph.reconcile")),
	}
}

// Rebuild upserts every live asset and relationship, then removes graph
// nodes and edges whose ids are no longer live. Individual write failures
// are counted and logged; the pass continues.
func (r *Reconciler) Rebuild(ctx context.Context) (*RebuildResult, error) {
	res := &RebuildResult{}
	if !r.target.Enabled() {
		r.log.Info("graph disabled, skipping rebuild")
		return res, nil
	}
	start := time.Now()

	liveNodes, err := r.upsertAssets(ctx, res)
	if err != nil {
		reconcileRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	liveEdges, err := r.mergeRelationships(ctx, res)
	if err != nil {
		reconcileRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := r.prune(ctx, res, liveNodes, liveEdges); err != nil {
		reconcileRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	res.Duration = time.Since(start)
	reconcileRuns.WithLabelValues("ok").Inc()
	r.log.Info("graph rebuild complete",
		slog.Int("nodes_upserted", res.NodesUpserted),
		slog.Int("edges_merged", res.EdgesMerged),
		slog.Int("nodes_removed", res.NodesRemoved),
		slog.Int("edges_removed", res.EdgesRemoved),
		slog.Int("failures", res.Failures),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (r *Reconciler) upsertAssets(ctx context.Context, res *RebuildResult) (map[string]bool, error) {
	live := map[string]bool{}
	after := uuid.Nil
	for {
		page, err := r.source.LiveAssets(ctx, after, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("load assets: %w", err)
		}
		for _, n := range page {
			live[n.ID.String()] = true
			if err := r.target.UpsertAssetNode(ctx, n); err != nil {
				res.Failures++
				r.log.Warn("rebuild node upsert failed", slog.String("id", n.ID.String()), logger.Error(err))
				continue
			}
			res.NodesUpserted++
		}
		if len(page) < r.pageSize {
			return live, nil
		}
		after = page[len(page)-1].ID
	}
}

func (r *Reconciler) mergeRelationships(ctx context.Context, res *RebuildResult) (map[string]bool, error) {
	live := map[string]bool{}
	after := uuid.Nil
	for {
		page, err := r.source.LiveRelationships(ctx, after, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("load relationships: %w", err)
		}
		for _, e := range page {
			live[e.ID.String()] = true
			if err := r.target.MergeEdge(ctx, e); err != nil {
				res.Failures++
				r.log.Warn("rebuild edge merge failed", slog.String("id", e.ID.String()), logger.Error(err))
				continue
			}
			res.EdgesMerged++
		}
		if len(page) < r.pageSize {
			return live, nil
		}
		after = page[len(page)-1].ID
	}
}

func (r *Reconciler) prune(ctx context.Context, res *RebuildResult, liveNodes, liveEdges map[string]bool) error {
	edgeIDs, err := r.target.EdgeIDs(ctx)
	if err != nil {
		return fmt.Errorf("list graph edges: %w", err)
	}
	stale := staleIDs(edgeIDs, liveEdges)
	if err := r.target.DeleteEdgesByID(ctx, stale); err != nil {
		return fmt.Errorf("prune edges: %w", err)
	}
	res.EdgesRemoved = len(stale)

	nodeIDs, err := r.target.AssetNodeIDs(ctx)
	if err != nil {
		return fmt.Errorf("list graph nodes: %w", err)
	}
	stale = staleIDs(nodeIDs, liveNodes)
	if err := r.target.DeleteAssetNodes(ctx, stale); err != nil {
		return fmt.Errorf("prune nodes: %w", err)
	}
	res.NodesRemoved = len(stale)
	return nil
}

func staleIDs(present []string, live map[string]bool) []string {
	var out []string
	for _, id := range present {
		if !live[id] {
			out = append(out, id)
		}
	}
	return out
}
