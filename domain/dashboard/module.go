package dashboard

import (
	"go.uber.org/fx"

	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/domain/lifecycle"
	"github.com/tahopetis/crate/domain/relationships"
	"github.com/tahopetis/crate/domain/valuation"
)

var Module = fx.Module("dashboard",
	fx.Provide(
		func(s *ci.Service) AssetCounter { return s },
		func(s *relationships.Service) RelationshipCounter { return s },
		func(s *lifecycle.Service) LifecycleCounter { return s },
		func(s *valuation.Service) ValuationCounter { return s },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
