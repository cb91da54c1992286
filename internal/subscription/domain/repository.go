package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// UpdateUsedLicenses is the only write path for the derived cache.
	UpdateUsedLicenses(ctx context.Context, db *gorm.DB, id snowflake.ID, used int64, at time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	ListExpirable(ctx context.Context, db *gorm.DB, at time.Time) ([]Subscription, error)
}
