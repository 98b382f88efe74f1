package relationships

import (
	"go.uber.org/fx"
)

var Module = fx.Module("relationships",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
