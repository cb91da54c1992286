// Package domain contains billing plan templates and their tiered pricing.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrInvalidPlanKind = errors.New("invalid_plan_kind")
	ErrInvalidTiers    = errors.New("invalid_pricing_tiers")
)

// PlanKind is the closed set of capacity policies a plan can carry.
type PlanKind string

const (
	PlanKindSingleTenant        PlanKind = "single_tenant"
	PlanKindMultiTenantCapped   PlanKind = "multi_tenant_capped"
	PlanKindMultiTenantUncapped PlanKind = "multi_tenant_uncapped"
)

func ParsePlanKind(value string) (PlanKind, error) {
	switch PlanKind(value) {
	case PlanKindSingleTenant, PlanKindMultiTenantCapped, PlanKindMultiTenantUncapped:
		return PlanKind(value), nil
	default:
		return "", ErrInvalidPlanKind
	}
}

// AllowsMultipleTenants reports whether more than one tenant may attach.
func (k PlanKind) AllowsMultipleTenants() bool {
	switch k {
	case PlanKindSingleTenant:
		return false
	case PlanKindMultiTenantCapped, PlanKindMultiTenantUncapped:
		return true
	}
	return false
}

// Capped reports whether the plan enforces a license limit by default.
func (k PlanKind) Capped() bool {
	switch k {
	case PlanKindMultiTenantUncapped:
		return false
	case PlanKindSingleTenant, PlanKindMultiTenantCapped:
		return true
	}
	return false
}

// Plan is a billing template. Immutable once referenced by active
// subscriptions except for administrative correction.
type Plan struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	Code                string       `gorm:"type:text;not null;uniqueIndex"`
	Name                string       `gorm:"type:text;not null"`
	Kind                PlanKind     `gorm:"type:text;not null"`
	LicenseMin          int64        `gorm:"not null"`
	LicenseLimitDefault *int64
	AllowOverage        bool      `gorm:"not null;default:false"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// PricingTier is one contiguous license-count range billed at a flat
// per-license price. MaxUnits nil means open-ended.
type PricingTier struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	PlanID       snowflake.ID `gorm:"not null;index"`
	MinUnits     int64        `gorm:"not null"`
	MaxUnits     *int64
	PricePerUnit decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (PricingTier) TableName() string { return "pricing_tiers" }

// Covers reports whether unitCount falls inside the tier's range.
func (t PricingTier) Covers(unitCount int64) bool {
	if unitCount < t.MinUnits {
		return false
	}
	return t.MaxUnits == nil || unitCount <= *t.MaxUnits
}

// TierNotFoundError marks a pricing configuration gap. It is an internal
// defect, never a user-facing condition.
type TierNotFoundError struct {
	PlanID    snowflake.ID
	UnitCount int64
}

func (e *TierNotFoundError) Error() string {
	return fmt.Sprintf("no pricing tier on plan %s covers %d units", e.PlanID, e.UnitCount)
}

// ValidateTiers checks that tiers are ordered, non-overlapping and gap-free
// over [licenseMin, inf). The last tier must be open-ended.
func ValidateTiers(licenseMin int64, tiers []PricingTier) error {
	if len(tiers) == 0 {
		return ErrInvalidTiers
	}
	if tiers[0].MinUnits > licenseMin {
		return fmt.Errorf("%w: first tier starts at %d, above license minimum %d", ErrInvalidTiers, tiers[0].MinUnits, licenseMin)
	}
	for i, tier := range tiers {
		last := i == len(tiers)-1
		if last {
			if tier.MaxUnits != nil {
				return fmt.Errorf("%w: last tier must be open-ended", ErrInvalidTiers)
			}
			continue
		}
		if tier.MaxUnits == nil {
			return fmt.Errorf("%w: only the last tier may be open-ended", ErrInvalidTiers)
		}
		next := tiers[i+1]
		if next.MinUnits != *tier.MaxUnits+1 {
			return fmt.Errorf("%w: gap or overlap between tiers at %d", ErrInvalidTiers, *tier.MaxUnits)
		}
	}
	return nil
}
