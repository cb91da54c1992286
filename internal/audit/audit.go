// Package audit provides an append-only sink for ledger mutations. The engine
// writes records and never reads them back.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Log struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Action      string         `gorm:"type:text;not null;index"`
	EntityKind  string         `gorm:"type:text;not null"`
	EntityID    snowflake.ID   `gorm:"not null;index"`
	Before      datatypes.JSON `gorm:"type:jsonb"`
	After       datatypes.JSON `gorm:"type:jsonb"`
	PerformedBy snowflake.ID   `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}

func (Log) TableName() string { return "audit_logs" }

type Record struct {
	Action      string
	EntityKind  string
	EntityID    snowflake.ID
	Before      any
	After       any
	PerformedBy snowflake.ID
}

// Recorder appends audit records, usually within the caller's transaction.
type Recorder interface {
	Append(ctx context.Context, db *gorm.DB, record Record) error
}

type recorder struct {
	genID *snowflake.Node
}

func NewRecorder(genID *snowflake.Node) Recorder {
	return &recorder{genID: genID}
}

func (r *recorder) Append(ctx context.Context, db *gorm.DB, record Record) error {
	before, err := marshalSnapshot(record.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(record.After)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&Log{
		ID:          r.genID.Generate(),
		Action:      record.Action,
		EntityKind:  record.EntityKind,
		EntityID:    record.EntityID,
		Before:      before,
		After:       after,
		PerformedBy: record.PerformedBy,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

func marshalSnapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
