package audit

import "go.uber.org/fx"

var Module = fx.Module("audit",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewService,
		func(s *Service) Recorder { return s },
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
