package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() feedomain.Repository {
	return &repository{}
}

func (r *repository) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*feedomain.Fee, error) {
	var fee feedomain.Fee
	err := db.WithContext(ctx).First(&fee, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fee, nil
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, fee *feedomain.Fee) error {
	return db.WithContext(ctx).Create(fee).Error
}

func (r *repository) ListForTenantPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int, month int) ([]feedomain.Fee, error) {
	var fees []feedomain.Fee
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND period_year = ? AND period_month = ?", tenantID, year, month).
		Order("unit_id ASC").
		Find(&fees).Error
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (r *repository) ListUnpaidForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]feedomain.Fee, error) {
	var fees []feedomain.Fee
	// COALESCE pushes annual fees (null month) after December of their year.
	err := db.WithContext(ctx).
		Where("unit_id = ? AND status <> ?", unitID, feedomain.FeeStatusPaid).
		Order("period_year ASC, COALESCE(period_month, 13) ASC, id ASC").
		Find(&fees).Error
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (r *repository) ListForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]feedomain.Fee, error) {
	var fees []feedomain.Fee
	err := db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("period_year ASC, COALESCE(period_month, 13) ASC, id ASC").
		Find(&fees).Error
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, feeID snowflake.ID, status feedomain.FeeStatus) error {
	return db.WithContext(ctx).Model(&feedomain.Fee{}).
		Where("id = ?", feeID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func pastDue(db *gorm.DB, asOf time.Time) *gorm.DB {
	return db.Model(&feedomain.Fee{}).
		Where("status = ? AND due_date < ? AND is_historical = ?",
			feedomain.FeeStatusPending, asOf, false)
}

func (r *repository) CountPastDue(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error) {
	var count int64
	err := pastDue(db.WithContext(ctx), asOf).Count(&count).Error
	return count, err
}

func (r *repository) MarkOverdue(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error) {
	res := pastDue(db.WithContext(ctx), asOf).
		Updates(map[string]any{"status": feedomain.FeeStatusOverdue, "updated_at": asOf})
	return res.RowsAffected, res.Error
}
