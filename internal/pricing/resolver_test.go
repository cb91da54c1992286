package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
)

func i64(v int64) *int64 { return &v }

func testTiers() []plandomain.PricingTier {
	return []plandomain.PricingTier{
		{MinUnits: 0, MaxUnits: i64(50), PricePerUnit: decimal.RequireFromString("1.90")},
		{MinUnits: 51, MaxUnits: i64(200), PricePerUnit: decimal.RequireFromString("1.50")},
		{MinUnits: 201, PricePerUnit: decimal.RequireFromString("1.10")},
	}
}

func TestResolveTierPrice_VolumePricing(t *testing.T) {
	plan := &plandomain.Plan{LicenseMin: 10}

	tests := []struct {
		name      string
		unitCount int64
		want      string
	}{
		{"lowest tier", 10, "1.90"},
		{"tier boundary low", 50, "1.90"},
		{"tier boundary high", 51, "1.50"},
		{"middle tier", 120, "1.50"},
		{"open-ended tier", 5000, "1.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := ResolveTierPrice(plan, testTiers(), tt.unitCount)
			require.NoError(t, err)
			assert.True(t, price.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", price, tt.want)
		})
	}
}

func TestResolveTierPrice_GapIsConfigurationError(t *testing.T) {
	plan := &plandomain.Plan{ID: 42}
	tiers := []plandomain.PricingTier{
		{MinUnits: 0, MaxUnits: i64(50), PricePerUnit: decimal.RequireFromString("1.90")},
		{MinUnits: 100, PricePerUnit: decimal.RequireFromString("1.10")},
	}

	_, err := ResolveTierPrice(plan, tiers, 75)
	var notFound *plandomain.TierNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(75), notFound.UnitCount)
}

func TestEffectiveUnits(t *testing.T) {
	assert.Equal(t, int64(10), EffectiveUnits(4, true, 10))
	assert.Equal(t, int64(4), EffectiveUnits(4, false, 10))
	assert.Equal(t, int64(25), EffectiveUnits(25, true, 10))
	assert.Equal(t, int64(10), EffectiveUnits(10, true, 10))
}

func TestComputeMonthlyCharge_WholeCountAtSingleRate(t *testing.T) {
	plan := &plandomain.Plan{LicenseMin: 10}

	// 120 units all priced at the covering tier's rate, not graduated.
	charge, err := ComputeMonthlyCharge(plan, testTiers(), 120, true)
	require.NoError(t, err)
	assert.True(t, charge.Equal(decimal.RequireFromString("180.00")), "got %s", charge)

	// Below the floor the minimum is billed.
	charge, err = ComputeMonthlyCharge(plan, testTiers(), 4, true)
	require.NoError(t, err)
	assert.True(t, charge.Equal(decimal.RequireFromString("19.00")), "got %s", charge)
}
