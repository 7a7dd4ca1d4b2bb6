package catalog

import "go.uber.org/fx"

// Module exposes the catalog service via Fx.
var Module = fx.Options(
	fx.Provide(NewRepository, NewService),
)
