package migration

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/audit"
	"github.com/condolabs/condoledger/internal/budget"
	"github.com/condolabs/condoledger/internal/events"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

// advisoryLockKey serializes schema migration across instances sharing one
// postgres database.
const advisoryLockKey = 794215003

func models() []any {
	return []any{
		&plandomain.Plan{},
		&plandomain.PricingTier{},
		&tenantdomain.Tenant{},
		&tenantdomain.Unit{},
		&tenantdomain.TenantAttachment{},
		&subscriptiondomain.Subscription{},
		&budget.AnnualBudget{},
		&budget.RevenueLine{},
		&feedomain.Fee{},
		&paymentdomain.Payment{},
		&paymentdomain.FeePayment{},
		&paymentdomain.UnitCredit{},
		&events.Event{},
		&events.ConsumerOffset{},
		&audit.Log{},
	}
}

// Migrate brings the schema up to date. On postgres a session advisory lock
// keeps concurrently starting instances from racing the DDL.
func Migrate(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if db.Dialector.Name() == "postgres" {
		if err := db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", advisoryLockKey).Error; err != nil {
			return err
		}
		defer func() {
			if err := db.WithContext(ctx).Exec("SELECT pg_advisory_unlock(?)", advisoryLockKey).Error; err != nil {
				log.Warn("failed to release migration advisory lock", zap.Error(err))
			}
		}()
	}

	log.Info("running schema migration")
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return err
	}
	log.Info("schema migration complete")
	return nil
}
