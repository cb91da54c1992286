// Package domain contains the subscription and the errors the ledger raises.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_subscription_status")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrSubscriptionInactive = errors.New("subscription_not_active")
	ErrConcurrencyConflict  = errors.New("concurrency_conflict")
	ErrIntegrity            = errors.New("integrity_violation")
)

// SingleTenantViolationError is raised when a second tenant is attached to a
// single-tenant plan, regardless of capacity.
type SingleTenantViolationError struct {
	SubscriptionID snowflake.ID
}

func (e *SingleTenantViolationError) Error() string {
	return fmt.Sprintf("single-tenant plan already has an attached tenant (subscription %s)", e.SubscriptionID)
}

// CapacityExceededError carries prospective vs. limit for diagnostics.
type CapacityExceededError struct {
	SubscriptionID snowflake.ID
	Prospective    int64
	Limit          int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("attach would use %d licenses, limit is %d (subscription %s)",
		e.Prospective, e.Limit, e.SubscriptionID)
}

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

func ParseStatus(value string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(value) {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusSuspended,
		SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return SubscriptionStatus(value), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Subscription is one paying owner's contract. UsedLicenses is a derived
// cache written only by the ledger's Recalculate.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	OwnerID            snowflake.ID       `gorm:"not null;index"`
	PlanID             snowflake.ID       `gorm:"not null;index"`
	Status             SubscriptionStatus `gorm:"type:text;not null;default:trial"`
	UsedLicenses       int64              `gorm:"not null;default:0"`
	LicenseLimit       *int64
	AllowOverage       *bool
	ChargeMinimum      bool `gorm:"not null;default:true"`
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEndsAt        *time.Time
	ExpiredAt          *time.Time
	CanceledAt         *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Live reports whether tenants may operate under this subscription.
func (s Subscription) Live() bool {
	switch s.Status {
	case SubscriptionStatusTrial, SubscriptionStatusActive:
		return true
	default:
		return false
	}
}

// EffectiveLicenseLimit resolves the subscription override against the plan
// default. The second return is false when the subscription is uncapped.
func (s Subscription) EffectiveLicenseLimit(planDefault *int64) (int64, bool) {
	if s.LicenseLimit != nil {
		return *s.LicenseLimit, true
	}
	if planDefault != nil {
		return *planDefault, true
	}
	return 0, false
}

// EffectiveAllowOverage resolves the subscription override against the plan.
func (s Subscription) EffectiveAllowOverage(planAllows bool) bool {
	if s.AllowOverage != nil {
		return *s.AllowOverage
	}
	return planAllows
}

func TransitionAllowed(current, target SubscriptionStatus) bool {
	switch current {
	case SubscriptionStatusTrial:
		return target == SubscriptionStatusActive || target == SubscriptionStatusExpired || target == SubscriptionStatusCanceled
	case SubscriptionStatusActive:
		return target == SubscriptionStatusSuspended || target == SubscriptionStatusExpired || target == SubscriptionStatusCanceled
	case SubscriptionStatusSuspended:
		return target == SubscriptionStatusActive || target == SubscriptionStatusExpired || target == SubscriptionStatusCanceled
	case SubscriptionStatusExpired:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCanceled
	default:
		return false
	}
}
