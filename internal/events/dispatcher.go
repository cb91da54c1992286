package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dispatcherConsumerID = "notification_dispatcher"
	dispatchBatchSize    = 50
)

// NotificationProvider receives domain events. Implementations (email, chat
// webhooks) live outside the engine.
type NotificationProvider interface {
	Notify(ctx context.Context, eventType string, payload json.RawMessage) error
}

// LogProvider is the default provider: it only logs the event.
type LogProvider struct {
	Log *zap.Logger
}

func (p LogProvider) Notify(ctx context.Context, eventType string, payload json.RawMessage) error {
	p.Log.Info("domain event", zap.String("type", eventType), zap.ByteString("payload", payload))
	return nil
}

type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	providers []NotificationProvider
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, providers []NotificationProvider) *Dispatcher {
	return &Dispatcher{
		db:        db,
		log:       log.Named("events.dispatcher"),
		providers: providers,
	}
}

// ProcessEvents delivers events recorded past the stored offset. The offset
// advances one event at a time so a crash never skips deliveries.
func (d *Dispatcher) ProcessEvents(ctx context.Context) (int, error) {
	lastID, err := d.lastEventID(ctx)
	if err != nil {
		return 0, err
	}

	var rows []Event
	err = d.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(dispatchBatchSize).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		for _, provider := range d.providers {
			if err := provider.Notify(ctx, row.EventType, json.RawMessage(row.Payload)); err != nil {
				// Fire-and-forget: delivery failures are logged, never retried here.
				d.log.Error("notification delivery failed",
					zap.Error(err),
					zap.String("event_id", row.ID.String()),
					zap.String("type", row.EventType),
				)
			}
		}
		if err := d.advanceOffset(ctx, row.ID); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

func (d *Dispatcher) lastEventID(ctx context.Context) (snowflake.ID, error) {
	var offset ConsumerOffset
	err := d.db.WithContext(ctx).
		First(&offset, "consumer_id = ?", dispatcherConsumerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return offset.LastEventID, nil
}

func (d *Dispatcher) advanceOffset(ctx context.Context, eventID snowflake.ID) error {
	now := time.Now().UTC()
	res := d.db.WithContext(ctx).Model(&ConsumerOffset{}).
		Where("consumer_id = ?", dispatcherConsumerID).
		Updates(map[string]any{"last_event_id": eventID, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return d.db.WithContext(ctx).Create(&ConsumerOffset{
			ConsumerID:  dispatcherConsumerID,
			LastEventID: eventID,
			UpdatedAt:   now,
		}).Error
	}
	return nil
}
