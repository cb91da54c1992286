// Package domain contains periodic and one-off charges against units.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrFeeNotFound   = errors.New("fee_not_found")
	ErrInvalidPeriod = errors.New("invalid_fee_period")
	ErrInvalidAmount = errors.New("invalid_fee_amount")
)

type FeeKind string

const (
	FeeKindRegular FeeKind = "regular"
	FeeKindExtra   FeeKind = "extra"
)

type FeeStatus string

const (
	FeeStatusPending FeeStatus = "pending"
	FeeStatusPaid    FeeStatus = "paid"
	FeeStatusOverdue FeeStatus = "overdue"
)

// Fee is one charge against one unit for one period. Created once per
// (tenant, unit, period, kind[, label]); regeneration skips, never duplicates.
type Fee struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	TenantID     snowflake.ID    `gorm:"not null;index"`
	UnitID       snowflake.ID    `gorm:"not null;index"`
	PeriodYear   int             `gorm:"not null"`
	PeriodMonth  *int            // nil means annual
	Kind         FeeKind         `gorm:"type:text;not null"`
	Label        string          `gorm:"type:text;not null;default:''"`
	Amount       decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DueDate      time.Time       `gorm:"not null"`
	Status       FeeStatus       `gorm:"type:text;not null;default:pending"`
	IsHistorical bool            `gorm:"not null;default:false"`
	Reference    string          `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (Fee) TableName() string { return "fees" }

// Reference derives the deterministic fee identifier. Recomputing it for the
// same coordinates always yields the same value, which is what makes
// regeneration safe.
func Reference(tenantID, unitID snowflake.ID, year int, month *int, kind FeeKind, label string) string {
	monthPart := "annual"
	if month != nil {
		monthPart = fmt.Sprintf("%02d", *month)
	}
	payload := fmt.Sprintf("%s|%s|%d|%s|%s|%s",
		tenantID.String(), unitID.String(), year, monthPart, kind, label)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}

// ValidateMonth rejects out-of-range calendar months.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}
