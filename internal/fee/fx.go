package fee

import (
	"github.com/condolabs/condoledger/internal/fee/repository"
	"github.com/condolabs/condoledger/internal/fee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fee",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewGenerator),
)
