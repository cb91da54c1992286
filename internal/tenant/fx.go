package tenant

import (
	"github.com/condolabs/condoledger/internal/tenant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant",
	fx.Provide(repository.NewRepository),
)
