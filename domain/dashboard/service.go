// Package dashboard aggregates inventory counts for the landing page.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/pkg/logger"
)

const topTypes = 10

// AssetCounter is satisfied by *ci.Service.
type AssetCounter interface {
	CountTypes(ctx context.Context) (int, error)
	CountAssets(ctx context.Context) (int, error)
	AssetsPerType(ctx context.Context, limit int) ([]ci.TypeAssetCount, error)
}

// RelationshipCounter is satisfied by *relationships.Service.
type RelationshipCounter interface {
	CountTypes(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// LifecycleCounter is satisfied by *lifecycle.Service.
type LifecycleCounter interface {
	CountTypes(ctx context.Context) (int, error)
}

// ValuationCounter is satisfied by *valuation.Service.
type ValuationCounter interface {
	Count(ctx context.Context) (int, error)
}

// Stats counts live rows only.
type Stats struct {
	CITypes           int                 `json:"ci_types"`
	CIAssets          int                 `json:"ci_assets"`
	RelationshipTypes int                 `json:"relationship_types"`
	Relationships     int                 `json:"relationships"`
	LifecycleTypes    int                 `json:"lifecycle_types"`
	Valuations        int                 `json:"valuations"`
	AssetsPerType     []ci.TypeAssetCount `json:"assets_per_type"`
	GeneratedAt       time.Time           `json:"generated_at"`
}

// Service builds dashboard statistics.
type Service struct {
	assets        AssetCounter
	relationships RelationshipCounter
	lifecycles    LifecycleCounter
	valuations    ValuationCounter
	log           *slog.Logger
	now           func() time.Time
}

// NewService creates a new dashboard service
func NewService(assets AssetCounter, rels RelationshipCounter, lifecycles LifecycleCounter, valuations ValuationCounter, log *slog.Logger) *Service {
	return &Service{
		assets:        assets,
		relationships: rels,
		lifecycles:    lifecycles,
		valuations:    valuations,
		log:           log.With(logger.Scope("dashboard")),
		now:           time.Now,
	}
}

func count(ctx context.Context, dst *int, fn func(context.Context) (int, error)) func() error {
	return func() error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

// Stats runs the counts concurrently. The first failing count fails the call.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(count(gctx, &st.CITypes, s.assets.CountTypes))
	g.Go(count(gctx, &st.CIAssets, s.assets.CountAssets))
	g.Go(count(gctx, &st.RelationshipTypes, s.relationships.CountTypes))
	g.Go(count(gctx, &st.Relationships, s.relationships.Count))
	g.Go(count(gctx, &st.LifecycleTypes, s.lifecycles.CountTypes))
	g.Go(count(gctx, &st.Valuations, s.valuations.Count))
	g.Go(func() error {
		per, err := s.assets.AssetsPerType(gctx, topTypes)
		if err != nil {
			return err
		}
		st.AssetsPerType = per
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error("dashboard stats failed", logger.Error(err))
		return nil, err
	}
	if st.AssetsPerType == nil {
		st.AssetsPerType = []ci.TypeAssetCount{}
	}
	st.GeneratedAt = s.now().UTC()
	return st, nil
}
