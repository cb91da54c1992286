package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() plandomain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).First(&plan, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListTiers(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]plandomain.PricingTier, error) {
	var tiers []plandomain.PricingTier
	err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("min_units ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan, tiers []plandomain.PricingTier) error {
	if err := plandomain.ValidateTiers(plan.LicenseMin, tiers); err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		if len(tiers) > 0 {
			if err := tx.Create(&tiers).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
