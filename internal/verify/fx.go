package verify

import "go.uber.org/fx"

var Module = fx.Module("verify",
	fx.Provide(NewVerifier),
)
