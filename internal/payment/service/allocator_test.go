package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/events"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	feerepository "github.com/condolabs/condoledger/internal/fee/repository"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	paymentrepository "github.com/condolabs/condoledger/internal/payment/repository"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

type allocatorFixture struct {
	db      *gorm.DB
	genID   *snowflake.Node
	now     time.Time
	service paymentdomain.Service
	unit    *tenantdomain.Unit
}

func newAllocatorFixture(t *testing.T) *allocatorFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.Unit{},
		&feedomain.Fee{},
		&paymentdomain.Payment{},
		&paymentdomain.FeePayment{},
		&paymentdomain.UnitCredit{},
		&events.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	now := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)

	service := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.Fixed{T: now},
		Repo:    paymentrepository.NewRepository(),
		FeeRepo: feerepository.NewRepository(),
		Emitter: events.NewEmitter(node),
	})

	unit := &tenantdomain.Unit{
		ID:              node.Generate(),
		TenantID:        node.Generate(),
		Label:           "A-1",
		Weight:          1000,
		IsActive:        true,
		LicenseConsumed: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(unit).Error)

	return &allocatorFixture{db: db, genID: node, now: now, service: service, unit: unit}
}

func (f *allocatorFixture) createFee(t *testing.T, year int, month *int, amount string) *feedomain.Fee {
	t.Helper()
	fee := &feedomain.Fee{
		ID:          f.genID.Generate(),
		TenantID:    f.unit.TenantID,
		UnitID:      f.unit.ID,
		PeriodYear:  year,
		PeriodMonth: month,
		Kind:        feedomain.FeeKindRegular,
		Amount:      decimal.RequireFromString(amount),
		DueDate:     f.now,
		Status:      feedomain.FeeStatusPending,
		Reference:   feedomain.Reference(f.unit.TenantID, f.unit.ID, year, month, feedomain.FeeKindRegular, ""),
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.db.Create(fee).Error)
	return fee
}

func (f *allocatorFixture) apply(t *testing.T, amount string) paymentdomain.AllocationResult {
	t.Helper()
	result, err := f.service.Apply(context.Background(), paymentdomain.ApplyRequest{
		UnitID: f.unit.ID,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return result
}

func (f *allocatorFixture) feeStatus(t *testing.T, feeID snowflake.ID) feedomain.FeeStatus {
	t.Helper()
	var fee feedomain.Fee
	require.NoError(t, f.db.First(&fee, "id = ?", feeID).Error)
	return fee.Status
}

func monthPtr(m int) *int { return &m }

func TestApply_SettlesOldestFirst(t *testing.T) {
	f := newAllocatorFixture(t)
	feb := f.createFee(t, 2025, monthPtr(2), "50.00")
	jan := f.createFee(t, 2025, monthPtr(1), "50.00")

	result := f.apply(t, "100.00")

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, jan.ID, result.Allocations[0].FeeID)
	assert.Equal(t, feb.ID, result.Allocations[1].FeeID)
	assert.True(t, result.Allocations[0].Settled)
	assert.True(t, result.Allocations[1].Settled)
	assert.True(t, result.Credit.IsZero())

	assert.Equal(t, feedomain.FeeStatusPaid, f.feeStatus(t, jan.ID))
	assert.Equal(t, feedomain.FeeStatusPaid, f.feeStatus(t, feb.ID))
}

func TestApply_PaymentTargetingNewerFeeStillStartsAtOldest(t *testing.T) {
	f := newAllocatorFixture(t)
	jan := f.createFee(t, 2025, monthPtr(1), "50.00")
	f.createFee(t, 2025, monthPtr(2), "50.00")

	// Only the oldest debt moves, whatever the payer had in mind.
	result := f.apply(t, "50.00")

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, jan.ID, result.Allocations[0].FeeID)
	assert.Equal(t, feedomain.FeeStatusPaid, f.feeStatus(t, jan.ID))
}

func TestApply_AnnualFeeSortsAfterDecember(t *testing.T) {
	f := newAllocatorFixture(t)
	annual := f.createFee(t, 2024, nil, "30.00")
	dec := f.createFee(t, 2024, monthPtr(12), "30.00")
	jan := f.createFee(t, 2025, monthPtr(1), "30.00")

	result := f.apply(t, "90.00")

	require.Len(t, result.Allocations, 3)
	assert.Equal(t, dec.ID, result.Allocations[0].FeeID)
	assert.Equal(t, annual.ID, result.Allocations[1].FeeID)
	assert.Equal(t, jan.ID, result.Allocations[2].FeeID)
}

func TestApply_PartialPaymentLeavesFeePending(t *testing.T) {
	f := newAllocatorFixture(t)
	fee := f.createFee(t, 2025, monthPtr(1), "100.00")

	result := f.apply(t, "60.00")

	require.Len(t, result.Allocations, 1)
	assert.False(t, result.Allocations[0].Settled)
	assert.Equal(t, "60.00", result.Allocations[0].Amount.StringFixed(2))
	assert.Equal(t, feedomain.FeeStatusPending, f.feeStatus(t, fee.ID))

	// The completing payment settles it.
	result = f.apply(t, "40.00")
	require.Len(t, result.Allocations, 1)
	assert.True(t, result.Allocations[0].Settled)
	assert.Equal(t, feedomain.FeeStatusPaid, f.feeStatus(t, fee.ID))

	var eventCount int64
	require.NoError(t, f.db.Model(&events.Event{}).
		Where("event_type = ?", events.TypeFeePaid).
		Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestApply_RemainderBecomesCredit(t *testing.T) {
	f := newAllocatorFixture(t)
	f.createFee(t, 2025, monthPtr(1), "80.00")

	result := f.apply(t, "100.00")

	assert.Equal(t, "20.00", result.Credit.StringFixed(2))

	var credit paymentdomain.UnitCredit
	require.NoError(t, f.db.First(&credit, "unit_id = ?", f.unit.ID).Error)
	assert.Equal(t, "20.00", credit.Amount.StringFixed(2))
	assert.Equal(t, result.PaymentID, credit.PaymentID)
}

func TestApply_NoOutstandingFeesAllCredit(t *testing.T) {
	f := newAllocatorFixture(t)

	result := f.apply(t, "100.00")

	assert.Empty(t, result.Allocations)
	assert.Equal(t, "100.00", result.Credit.StringFixed(2))
}

func TestApply_RejectsNonPositiveAmount(t *testing.T) {
	f := newAllocatorFixture(t)

	_, err := f.service.Apply(context.Background(), paymentdomain.ApplyRequest{
		UnitID: f.unit.ID,
		Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.service.Apply(context.Background(), paymentdomain.ApplyRequest{
		UnitID: f.unit.ID,
		Amount: decimal.RequireFromString("-5.00"),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestApply_UnknownUnit(t *testing.T) {
	f := newAllocatorFixture(t)

	_, err := f.service.Apply(context.Background(), paymentdomain.ApplyRequest{
		UnitID: f.genID.Generate(),
		Amount: decimal.RequireFromString("10.00"),
	})
	assert.ErrorIs(t, err, tenantdomain.ErrUnitNotFound)
}

func TestGetOutstandingBalance_RoundTrip(t *testing.T) {
	f := newAllocatorFixture(t)
	f.createFee(t, 2025, monthPtr(1), "100.00")
	f.createFee(t, 2025, monthPtr(2), "50.00")

	balance, err := f.service.GetOutstandingBalance(context.Background(), f.unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", balance.StringFixed(2))

	f.apply(t, "60.00")

	balance, err = f.service.GetOutstandingBalance(context.Background(), f.unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.StringFixed(2))

	f.apply(t, "90.00")

	balance, err = f.service.GetOutstandingBalance(context.Background(), f.unit.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)
}
