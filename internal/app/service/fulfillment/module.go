package fulfillment

import "go.uber.org/fx"

// Module exposes the fulfillment engine via Fx.
var Module = fx.Options(
	fx.Provide(NewRepository, NewEngine),
)
