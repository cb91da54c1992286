package events

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("events",
	fx.Provide(NewEmitter),
	fx.Provide(func(db *gorm.DB, log *zap.Logger) *Dispatcher {
		return NewDispatcher(db, log, []NotificationProvider{LogProvider{Log: log.Named("events.log_provider")}})
	}),
)
