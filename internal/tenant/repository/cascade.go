package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Cascading deletes follow the ownership graph one edge at a time:
// tenant -> units -> fees -> fee_payments. Reserved for administrative
// data-repair tooling; normal lifecycles never delete these rows.

func DeletePaymentsForFeesOfUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM fee_payments WHERE fee_id IN (SELECT id FROM fees WHERE unit_id = ?)`,
		unitID,
	).Error
}

func DeleteFeesOfUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM fees WHERE unit_id = ?`, unitID).Error
}

func DeleteUnitsOfTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM units WHERE tenant_id = ?`, tenantID).Error
}

// PurgeUnit removes a unit and everything it owns, walking edges leaf-first.
func PurgeUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := DeletePaymentsForFeesOfUnit(ctx, tx, unitID); err != nil {
			return err
		}
		if err := DeleteFeesOfUnit(ctx, tx, unitID); err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM units WHERE id = ?`, unitID).Error
	})
}

// PurgeTenant removes a tenant and everything it owns, walking edges leaf-first.
func PurgeTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unitIDs []snowflake.ID
		if err := tx.Raw(`SELECT id FROM units WHERE tenant_id = ?`, tenantID).Scan(&unitIDs).Error; err != nil {
			return err
		}
		for _, unitID := range unitIDs {
			if err := DeletePaymentsForFeesOfUnit(ctx, tx, unitID); err != nil {
				return err
			}
			if err := DeleteFeesOfUnit(ctx, tx, unitID); err != nil {
				return err
			}
		}
		if err := DeleteUnitsOfTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM tenants WHERE id = ?`, tenantID).Error
	})
}
