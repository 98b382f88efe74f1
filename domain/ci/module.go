package ci

import (
	"go.uber.org/fx"

	"github.com/tahopetis/crate/pkg/schema"
)

var Module = fx.Module("ci",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		schema.NewValidator,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
