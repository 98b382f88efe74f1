package valuation

import "go.uber.org/fx"

var Module = fx.Module("valuation",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
