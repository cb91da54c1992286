package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ApplyRequest struct {
	UnitID    snowflake.ID
	Amount    decimal.Decimal
	AppliedAt time.Time
}

// Service applies payments to a unit's fees, strictly oldest period first,
// and answers outstanding-balance queries.
type Service interface {
	Apply(ctx context.Context, req ApplyRequest) (AllocationResult, error)
	GetOutstandingBalance(ctx context.Context, unitID snowflake.ID) (decimal.Decimal, error)
}
