package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func tier(min int64, max *int64, price string) PricingTier {
	return PricingTier{MinUnits: min, MaxUnits: max, PricePerUnit: decimal.RequireFromString(price)}
}

func TestParsePlanKind(t *testing.T) {
	kind, err := ParsePlanKind("multi_tenant_capped")
	require.NoError(t, err)
	assert.Equal(t, PlanKindMultiTenantCapped, kind)

	_, err = ParsePlanKind("enterprise")
	assert.ErrorIs(t, err, ErrInvalidPlanKind)
}

func TestPlanKindPolicies(t *testing.T) {
	assert.False(t, PlanKindSingleTenant.AllowsMultipleTenants())
	assert.True(t, PlanKindMultiTenantCapped.AllowsMultipleTenants())
	assert.True(t, PlanKindMultiTenantUncapped.AllowsMultipleTenants())

	assert.True(t, PlanKindSingleTenant.Capped())
	assert.True(t, PlanKindMultiTenantCapped.Capped())
	assert.False(t, PlanKindMultiTenantUncapped.Capped())
}

func TestTierCovers(t *testing.T) {
	bounded := tier(51, i64(200), "1.50")
	assert.False(t, bounded.Covers(50))
	assert.True(t, bounded.Covers(51))
	assert.True(t, bounded.Covers(200))
	assert.False(t, bounded.Covers(201))

	open := tier(201, nil, "1.10")
	assert.True(t, open.Covers(201))
	assert.True(t, open.Covers(1_000_000))
}

func TestValidateTiers(t *testing.T) {
	valid := []PricingTier{
		tier(0, i64(50), "1.90"),
		tier(51, i64(200), "1.50"),
		tier(201, nil, "1.10"),
	}
	assert.NoError(t, ValidateTiers(10, valid))

	tests := []struct {
		name  string
		tiers []PricingTier
	}{
		{"empty", nil},
		{"gap between tiers", []PricingTier{
			tier(0, i64(50), "1.90"),
			tier(100, nil, "1.10"),
		}},
		{"overlap", []PricingTier{
			tier(0, i64(50), "1.90"),
			tier(40, nil, "1.10"),
		}},
		{"last tier bounded", []PricingTier{
			tier(0, i64(50), "1.90"),
			tier(51, i64(200), "1.50"),
		}},
		{"open-ended tier in the middle", []PricingTier{
			tier(0, nil, "1.90"),
			tier(51, nil, "1.50"),
		}},
		{"first tier starts above minimum", []PricingTier{
			tier(20, nil, "1.90"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateTiers(10, tt.tiers), ErrInvalidTiers)
		})
	}
}
