package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func NewRepository() tenantdomain.Repository {
	return &repository{}
}

func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := forUpdate(db.WithContext(ctx)).First(&tenant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) ListUnits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]tenantdomain.Unit, error) {
	var units []tenantdomain.Unit
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) ListBillableUnits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]tenantdomain.Unit, error) {
	var units []tenantdomain.Unit
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ? AND archived_at IS NULL", tenantID, true).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) FindUnitByID(ctx context.Context, db *gorm.DB, unitID snowflake.ID) (*tenantdomain.Unit, error) {
	var unit tenantdomain.Unit
	err := db.WithContext(ctx).First(&unit, "id = ?", unitID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

func (r *repository) FindActiveAttachmentByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*tenantdomain.TenantAttachment, error) {
	var attachment tenantdomain.TenantAttachment
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, tenantdomain.AttachmentStatusActive).
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attachment, nil
}

func (r *repository) FindActiveAttachment(ctx context.Context, db *gorm.DB, subscriptionID, tenantID snowflake.ID) (*tenantdomain.TenantAttachment, error) {
	var attachment tenantdomain.TenantAttachment
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND tenant_id = ? AND status = ?", subscriptionID, tenantID, tenantdomain.AttachmentStatusActive).
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attachment, nil
}

func (r *repository) ListActiveAttachments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]tenantdomain.TenantAttachment, error) {
	var attachments []tenantdomain.TenantAttachment
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, tenantdomain.AttachmentStatusActive).
		Order("attached_at ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

func (r *repository) CountActiveAttachments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&tenantdomain.TenantAttachment{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, tenantdomain.AttachmentStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) InsertAttachment(ctx context.Context, db *gorm.DB, attachment *tenantdomain.TenantAttachment) error {
	return db.WithContext(ctx).Create(attachment).Error
}

func (r *repository) MarkDetached(ctx context.Context, db *gorm.DB, attachmentID snowflake.ID, at time.Time, by snowflake.ID, notes string) error {
	return db.WithContext(ctx).Model(&tenantdomain.TenantAttachment{}).
		Where("id = ?", attachmentID).
		Updates(map[string]any{
			"status":      tenantdomain.AttachmentStatusDetached,
			"detached_at": at,
			"detached_by": by,
			"notes":       notes,
		}).Error
}

func (r *repository) BindSubscription(ctx context.Context, db *gorm.DB, tenantID, subscriptionID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"subscription_id": subscriptionID,
			"state":           tenantdomain.TenantStateActive,
			"locked_at":       nil,
			"locked_reason":   nil,
			"updated_at":      at,
		}).Error
}

func (r *repository) Lock(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time, reason string) error {
	return db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"state":         tenantdomain.TenantStateLocked,
			"locked_at":     at,
			"locked_reason": reason,
			"updated_at":    at,
		}).Error
}

func (r *repository) Unlock(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"state":         tenantdomain.TenantStateActive,
			"locked_at":     nil,
			"locked_reason": nil,
			"updated_at":    at,
		}).Error
}
