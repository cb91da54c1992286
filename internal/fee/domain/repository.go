package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Fee, error)
	Insert(ctx context.Context, db *gorm.DB, fee *Fee) error
	ListForTenantPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int, month int) ([]Fee, error)
	// ListUnpaidForUnit returns fees with status != paid, oldest period first
	// (annual fees sort after December of their year).
	ListUnpaidForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]Fee, error)
	ListForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]Fee, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, feeID snowflake.ID, status FeeStatus) error
	// CountPastDue counts pending non-historical fees due before asOf.
	CountPastDue(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error)
	// MarkOverdue flips those same fees to overdue and reports how many moved.
	MarkOverdue(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error)
}
