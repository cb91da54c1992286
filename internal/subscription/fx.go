package subscription

import (
	"github.com/condolabs/condoledger/internal/subscription/repository"
	"github.com/condolabs/condoledger/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
