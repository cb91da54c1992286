package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func NewRepository() subscriptiondomain.Repository {
	return &repository{}
}

func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).First(&subscription, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := forUpdate(db.WithContext(ctx)).First(&subscription, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateUsedLicenses(ctx context.Context, db *gorm.DB, id snowflake.ID, used int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET used_licenses = ?, updated_at = ? WHERE id = ?`,
		used, at, id,
	).Error
}

// UpdateStatus refuses the write when a concurrent transition already moved
// the row to the target status; the row-lock path normally prevents this, but
// the guard catches lost updates on dialects without the lock.
func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, expired_at = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		subscription.Status,
		subscription.ExpiredAt,
		subscription.CanceledAt,
		subscription.UpdatedAt,
		subscription.ID,
		subscription.Status,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrConcurrencyConflict
	}
	return nil
}

func (r *repository) ListExpirable(ctx context.Context, db *gorm.DB, at time.Time) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where(`(status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?)
		       OR (status = ? AND current_period_end <= ?)`,
			subscriptiondomain.SubscriptionStatusTrial, at,
			subscriptiondomain.SubscriptionStatusActive, at).
		Order("id ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
