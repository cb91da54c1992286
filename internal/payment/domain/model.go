// Package domain contains payments and their allocation trail against fees.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid_payment_amount")
	ErrPaymentNotFound = errors.New("payment_not_found")
)

// Payment is one monetary application against a unit's outstanding fees.
// Rows are append-only.
type Payment struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	UnitID    snowflake.ID    `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	AppliedAt time.Time       `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// FeePayment records how much of one payment settled one fee.
type FeePayment struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	FeeID     snowflake.ID    `gorm:"not null;index"`
	PaymentID snowflake.ID    `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (FeePayment) TableName() string { return "fee_payments" }

// UnitCredit holds the remainder of a payment after all outstanding fees were
// covered: a prepayment toward future periods.
type UnitCredit struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	UnitID    snowflake.ID    `gorm:"not null;index"`
	PaymentID snowflake.ID    `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (UnitCredit) TableName() string { return "unit_credits" }

type FeeAllocation struct {
	FeeID   snowflake.ID
	Amount  decimal.Decimal
	Settled bool
}

type AllocationResult struct {
	PaymentID   snowflake.ID
	Allocations []FeeAllocation
	Credit      decimal.Decimal
}
