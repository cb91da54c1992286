package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	ListUnits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Unit, error)
	ListBillableUnits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Unit, error)
	FindUnitByID(ctx context.Context, db *gorm.DB, unitID snowflake.ID) (*Unit, error)

	FindActiveAttachmentByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*TenantAttachment, error)
	FindActiveAttachment(ctx context.Context, db *gorm.DB, subscriptionID, tenantID snowflake.ID) (*TenantAttachment, error)
	ListActiveAttachments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]TenantAttachment, error)
	CountActiveAttachments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int64, error)
	InsertAttachment(ctx context.Context, db *gorm.DB, attachment *TenantAttachment) error
	MarkDetached(ctx context.Context, db *gorm.DB, attachmentID snowflake.ID, at time.Time, by snowflake.ID, notes string) error

	BindSubscription(ctx context.Context, db *gorm.DB, tenantID, subscriptionID snowflake.ID, at time.Time) error
	Lock(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time, reason string) error
	Unlock(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time) error
}
