// Package events is the outbox for domain events. Notification delivery is
// fire-and-forget: the engine records events in the caller's transaction and
// a dispatcher fans them out later.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypeSubscriptionExpired = "subscription.expired"
	TypeTenantDetached      = "tenant.detached"
	TypeFeePaid             = "fee.paid"
)

type Event struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	EventType string         `gorm:"type:text;not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (Event) TableName() string { return "billing_events" }

// ConsumerOffset tracks the last event each consumer has processed.
type ConsumerOffset struct {
	ConsumerID  string       `gorm:"primaryKey;type:text"`
	LastEventID snowflake.ID `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

func (ConsumerOffset) TableName() string { return "billing_event_offsets" }

// Emitter records events. Pass the surrounding tx so the event commits or
// rolls back with the mutation that produced it.
type Emitter interface {
	Emit(ctx context.Context, db *gorm.DB, eventType string, payload any) error
}

type emitter struct {
	genID *snowflake.Node
}

func NewEmitter(genID *snowflake.Node) Emitter {
	return &emitter{genID: genID}
}

func (e *emitter) Emit(ctx context.Context, db *gorm.DB, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&Event{
		ID:        e.genID.Generate(),
		EventType: eventType,
		Payload:   datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}).Error
}
