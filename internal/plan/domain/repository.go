package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	ListTiers(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PricingTier, error)
	Insert(ctx context.Context, db *gorm.DB, plan *Plan, tiers []PricingTier) error
}
