package budget

import "go.uber.org/fx"

var Module = fx.Module("budget",
	fx.Provide(NewProvider),
)
