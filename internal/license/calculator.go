// Package license derives billable unit counts for subscriptions.
package license

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Calculator counts units that consume a license. Read-only; callers that
// mutate state based on the result must pass their own transaction handle so
// the count stays consistent with the write.
type Calculator struct {
	log *zap.Logger
}

type CalculatorParam struct {
	fx.In

	Log *zap.Logger
}

func NewCalculator(p CalculatorParam) *Calculator {
	return &Calculator{log: p.Log.Named("license.calculator")}
}

// CountBillableUnits counts units of one tenant where
// is_active AND license_consumed AND archived_at IS NULL.
func (c *Calculator) CountBillableUnits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&tenantdomain.Unit{}).
		Where("tenant_id = ? AND is_active = ? AND license_consumed = ? AND archived_at IS NULL",
			tenantID, true, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AggregateForSubscription sums billable units over all active attachments.
func (c *Calculator) AggregateForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(cnt), 0) FROM (
		   SELECT COUNT(u.id) AS cnt
		   FROM tenant_attachments ta
		   JOIN units u ON u.tenant_id = ta.tenant_id
		   WHERE ta.subscription_id = ?
		     AND ta.status = ?
		     AND u.is_active = ?
		     AND u.license_consumed = ?
		     AND u.archived_at IS NULL
		   GROUP BY ta.tenant_id
		 ) usage_counts`,
		subscriptionID,
		tenantdomain.AttachmentStatusActive,
		true,
		true,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
