package payment

import (
	"github.com/condolabs/condoledger/internal/payment/repository"
	"github.com/condolabs/condoledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
