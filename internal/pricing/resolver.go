// Package pricing resolves tiered license prices. All functions are pure;
// tiers are expected to be loaded and ordered by the plan repository.
package pricing

import (
	"github.com/shopspring/decimal"

	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
)

// ResolveTierPrice returns the flat per-license price of the single tier
// covering unitCount. The whole count is billed at that tier's rate; there is
// no graduated pricing.
func ResolveTierPrice(plan *plandomain.Plan, tiers []plandomain.PricingTier, unitCount int64) (decimal.Decimal, error) {
	for _, tier := range tiers {
		if tier.Covers(unitCount) {
			return tier.PricePerUnit, nil
		}
	}
	return decimal.Zero, &plandomain.TierNotFoundError{PlanID: plan.ID, UnitCount: unitCount}
}

// EffectiveUnits applies the charge-minimum floor to a usage count.
func EffectiveUnits(usedLicenses int64, chargeMinimum bool, licenseMin int64) int64 {
	if chargeMinimum && usedLicenses < licenseMin {
		return licenseMin
	}
	return usedLicenses
}

// ComputeMonthlyCharge prices a subscription's current usage:
// effectiveUnits * pricePerUnit of the covering tier.
func ComputeMonthlyCharge(plan *plandomain.Plan, tiers []plandomain.PricingTier, usedLicenses int64, chargeMinimum bool) (decimal.Decimal, error) {
	units := EffectiveUnits(usedLicenses, chargeMinimum, plan.LicenseMin)
	price, err := ResolveTierPrice(plan, tiers, units)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(decimal.NewFromInt(units)).Round(2), nil
}
