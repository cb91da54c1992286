// Package budget exposes approved annual budgets to the fee engine.
package budget

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNoApprovedBudget = errors.New("no_approved_budget")

type BudgetStatus string

const (
	BudgetStatusDraft    BudgetStatus = "draft"
	BudgetStatusApproved BudgetStatus = "approved"
)

// AnnualBudget is the approved financial plan of one tenant for one year.
type AnnualBudget struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;index:idx_budget_tenant_year"`
	Year     int          `gorm:"not null;index:idx_budget_tenant_year"`
	Status   BudgetStatus `gorm:"type:text;not null;default:draft"`
}

func (AnnualBudget) TableName() string { return "annual_budgets" }

type RevenueLine struct {
	ID       snowflake.ID    `gorm:"primaryKey"`
	BudgetID snowflake.ID    `gorm:"not null;index"`
	Label    string          `gorm:"type:text;not null"`
	Amount   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

func (RevenueLine) TableName() string { return "budget_revenue_lines" }

type Budget struct {
	TenantID     snowflake.ID
	Year         int
	TotalRevenue decimal.Decimal
}

// Provider supplies the approved revenue total for a tenant and year. Fails
// with ErrNoApprovedBudget when none exists.
type Provider interface {
	GetApprovedBudget(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int) (Budget, error)
}

type provider struct{}

func NewProvider() Provider {
	return &provider{}
}

func (p *provider) GetApprovedBudget(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int) (Budget, error) {
	var row AnnualBudget
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND year = ? AND status = ?", tenantID, year, BudgetStatusApproved).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Budget{}, ErrNoApprovedBudget
		}
		return Budget{}, err
	}

	var total decimal.Decimal
	var lines []RevenueLine
	if err := db.WithContext(ctx).Where("budget_id = ?", row.ID).Find(&lines).Error; err != nil {
		return Budget{}, err
	}
	for _, line := range lines {
		total = total.Add(line.Amount)
	}

	return Budget{TenantID: tenantID, Year: year, TotalRevenue: total}, nil
}
