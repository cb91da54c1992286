// Package seed installs the built-in reference plans on first boot.
package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/clock"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
)

type planSeed struct {
	name         string
	kind         plandomain.PlanKind
	licenseMin   int64
	limitDefault *int64
	allowOverage bool
	tiers        []tierSeed
}

type tierSeed struct {
	minUnits int64
	maxUnits *int64
	price    string
}

func i64(v int64) *int64 { return &v }

func referencePlans() []planSeed {
	return []planSeed{
		{
			name:       "Starter Single",
			kind:       plandomain.PlanKindSingleTenant,
			licenseMin: 10,
			tiers: []tierSeed{
				{minUnits: 0, maxUnits: i64(50), price: "1.90"},
				{minUnits: 51, price: "1.50"},
			},
		},
		{
			name:         "Manager Capped",
			kind:         plandomain.PlanKindMultiTenantCapped,
			licenseMin:   25,
			limitDefault: i64(500),
			tiers: []tierSeed{
				{minUnits: 0, maxUnits: i64(100), price: "1.60"},
				{minUnits: 101, maxUnits: i64(300), price: "1.20"},
				{minUnits: 301, price: "0.90"},
			},
		},
		{
			name:         "Portfolio Unlimited",
			kind:         plandomain.PlanKindMultiTenantUncapped,
			licenseMin:   100,
			allowOverage: true,
			tiers: []tierSeed{
				{minUnits: 0, maxUnits: i64(500), price: "1.10"},
				{minUnits: 501, maxUnits: i64(2000), price: "0.80"},
				{minUnits: 2001, price: "0.60"},
			},
		},
	}
}

type Seeder struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	plans plandomain.Repository
}

func New(db *gorm.DB, log *zap.Logger, clk clock.Clock, genID *snowflake.Node, plans plandomain.Repository) *Seeder {
	return &Seeder{db: db, log: log.Named("seed"), clock: clk, genID: genID, plans: plans}
}

// Run inserts any reference plan not already present. Existing plans are
// matched by code and left untouched, so reruns are safe.
func (s *Seeder) Run(ctx context.Context) error {
	now := s.clock.Now(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range referencePlans() {
			code := slug.Make(seed.name)

			existing, err := s.plans.FindByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			plan := &plandomain.Plan{
				ID:                  s.genID.Generate(),
				Code:                code,
				Name:                seed.name,
				Kind:                seed.kind,
				LicenseMin:          seed.licenseMin,
				LicenseLimitDefault: seed.limitDefault,
				AllowOverage:        seed.allowOverage,
				CreatedAt:           now,
				UpdatedAt:           now,
			}

			tiers := make([]plandomain.PricingTier, 0, len(seed.tiers))
			for _, t := range seed.tiers {
				tiers = append(tiers, plandomain.PricingTier{
					ID:           s.genID.Generate(),
					PlanID:       plan.ID,
					MinUnits:     t.minUnits,
					MaxUnits:     t.maxUnits,
					PricePerUnit: decimal.RequireFromString(t.price),
					CreatedAt:    now,
				})
			}
			if err := plandomain.ValidateTiers(plan.LicenseMin, tiers); err != nil {
				return err
			}

			if err := s.plans.Insert(ctx, tx, plan, tiers); err != nil {
				return err
			}
			s.log.Info("seeded reference plan", zap.String("code", code))
		}
		return nil
	})
}
