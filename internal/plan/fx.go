package plan

import (
	"github.com/condolabs/condoledger/internal/plan/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("plan",
	fx.Provide(repository.NewRepository),
)
