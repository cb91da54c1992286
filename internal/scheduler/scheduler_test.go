package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/audit"
	"github.com/condolabs/condoledger/internal/budget"
	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/config"
	"github.com/condolabs/condoledger/internal/events"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	feerepository "github.com/condolabs/condoledger/internal/fee/repository"
	feeservice "github.com/condolabs/condoledger/internal/fee/service"
	"github.com/condolabs/condoledger/internal/joblock"
	"github.com/condolabs/condoledger/internal/license"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
	planrepository "github.com/condolabs/condoledger/internal/plan/repository"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	subscriptionrepository "github.com/condolabs/condoledger/internal/subscription/repository"
	subscriptionservice "github.com/condolabs/condoledger/internal/subscription/service"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
	tenantrepository "github.com/condolabs/condoledger/internal/tenant/repository"
	"github.com/condolabs/condoledger/internal/verify"
)

type schedulerFixture struct {
	db        *gorm.DB
	genID     *snowflake.Node
	now       time.Time
	redis     *miniredis.Miniredis
	scheduler *Scheduler
	ledger    subscriptiondomain.Service
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&plandomain.PricingTier{},
		&tenantdomain.Tenant{},
		&tenantdomain.Unit{},
		&tenantdomain.TenantAttachment{},
		&subscriptiondomain.Subscription{},
		&budget.AnnualBudget{},
		&budget.RevenueLine{},
		&feedomain.Fee{},
		&events.Event{},
		&events.ConsumerOffset{},
		&audit.Log{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	now := time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{T: now}

	mr := miniredis.RunT(t)
	locker := joblock.NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger, time.Minute)

	subRepo := subscriptionrepository.NewRepository()
	tenantRepo := tenantrepository.NewRepository()

	ledger := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Clock:      fixed,
		Repo:       subRepo,
		PlanRepo:   planrepository.NewRepository(),
		TenantRepo: tenantRepo,
		Calculator: license.NewCalculator(license.CalculatorParam{Log: logger}),
		Emitter:    events.NewEmitter(node),
		Auditor:    audit.NewRecorder(node),
	})

	cfg := config.Config{}
	cfg.Jobs.FeeDueDay = 10

	generator := feeservice.NewGenerator(feeservice.GeneratorParam{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Clock:      fixed,
		Config:     cfg,
		Repo:       feerepository.NewRepository(),
		TenantRepo: tenantRepo,
		Budgets:    budget.NewProvider(),
	})

	dispatcher := events.NewDispatcher(db, logger, []events.NotificationProvider{
		events.LogProvider{Log: logger},
	})
	verifier := verify.NewVerifier(verify.VerifierParam{DB: db, Log: logger, Ledger: ledger})

	sched := New(SchedulerParam{
		DB:         db,
		Log:        logger,
		Clock:      fixed,
		Locker:     locker,
		Generator:  generator,
		Ledger:     ledger,
		SubRepo:    subRepo,
		FeeRepo:    feerepository.NewRepository(),
		Dispatcher: dispatcher,
		Verifier:   verifier,
	})

	return &schedulerFixture{db: db, genID: node, now: now, redis: mr, scheduler: sched, ledger: ledger}
}

func (f *schedulerFixture) createTenant(t *testing.T, unitCount int) *tenantdomain.Tenant {
	t.Helper()
	tenant := &tenantdomain.Tenant{
		ID:        f.genID.Generate(),
		OwnerID:   f.genID.Generate(),
		Name:      "Residence",
		Slug:      fmt.Sprintf("residence-%d", f.genID.Generate()),
		State:     tenantdomain.TenantStateActive,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(t, f.db.Create(tenant).Error)
	for i := 0; i < unitCount; i++ {
		require.NoError(t, f.db.Create(&tenantdomain.Unit{
			ID:              f.genID.Generate(),
			TenantID:        tenant.ID,
			Label:           fmt.Sprintf("U-%d", i+1),
			Weight:          1000 / int64(unitCount),
			IsActive:        true,
			LicenseConsumed: true,
			CreatedAt:       f.now,
			UpdatedAt:       f.now,
		}).Error)
	}
	return tenant
}

func (f *schedulerFixture) approveBudget(t *testing.T, tenantID snowflake.ID, year int, total string) {
	t.Helper()
	annual := &budget.AnnualBudget{
		ID:       f.genID.Generate(),
		TenantID: tenantID,
		Year:     year,
		Status:   budget.BudgetStatusApproved,
	}
	require.NoError(t, f.db.Create(annual).Error)
	require.NoError(t, f.db.Create(&budget.RevenueLine{
		ID:       f.genID.Generate(),
		BudgetID: annual.ID,
		Label:    "fees",
		Amount:   decimal.RequireFromString(total),
	}).Error)
}

func TestGenerateMonthlyFees_SkipsTenantsWithoutBudget(t *testing.T) {
	f := newSchedulerFixture(t)
	funded := f.createTenant(t, 4)
	f.createTenant(t, 2) // no approved budget
	f.approveBudget(t, funded.ID, 2025, "12000.00")

	report, err := f.scheduler.GenerateMonthlyFees(context.Background(), GenerateMonthlyFeesRequest{
		Year:  2025,
		Month: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.False(t, report.Failed())

	var count int64
	require.NoError(t, f.db.Model(&feedomain.Fee{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestGenerateMonthlyFees_SingleTenantTarget(t *testing.T) {
	f := newSchedulerFixture(t)
	a := f.createTenant(t, 2)
	b := f.createTenant(t, 3)
	f.approveBudget(t, a.ID, 2025, "1200.00")
	f.approveBudget(t, b.ID, 2025, "2400.00")

	report, err := f.scheduler.GenerateMonthlyFees(context.Background(), GenerateMonthlyFeesRequest{
		Year:     2025,
		Month:    7,
		TenantID: a.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	var count int64
	require.NoError(t, f.db.Model(&feedomain.Fee{}).Where("tenant_id = ?", b.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGenerateMonthlyFees_LockedOut(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.redis.Set("joblock:generate_monthly_fees", "held"))

	_, err := f.scheduler.GenerateMonthlyFees(context.Background(), GenerateMonthlyFeesRequest{
		Year:  2025,
		Month: 7,
	})
	assert.ErrorIs(t, err, joblock.ErrAlreadyRunning)
}

func expirableSubscription(t *testing.T, f *schedulerFixture, trialEnd time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	plan := &plandomain.Plan{
		ID:         f.genID.Generate(),
		Code:       fmt.Sprintf("plan-%d", f.genID.Generate()),
		Name:       "Plan",
		Kind:       plandomain.PlanKindMultiTenantUncapped,
		LicenseMin: 1,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	require.NoError(t, f.db.Create(plan).Error)
	sub := &subscriptiondomain.Subscription{
		ID:                 f.genID.Generate(),
		OwnerID:            f.genID.Generate(),
		PlanID:             plan.ID,
		Status:             subscriptiondomain.SubscriptionStatusTrial,
		ChargeMinimum:      true,
		TrialEndsAt:        &trialEnd,
		CurrentPeriodStart: f.now,
		CurrentPeriodEnd:   f.now.AddDate(1, 0, 0),
		CreatedAt:          f.now,
		UpdatedAt:          f.now,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func TestExpireSubscriptions_DryRunDoesNotTransition(t *testing.T) {
	f := newSchedulerFixture(t)
	lapsed := expirableSubscription(t, f, f.now.AddDate(0, 0, -1))
	expirableSubscription(t, f, f.now.AddDate(0, 0, 30)) // still in trial

	report, err := f.scheduler.ExpireSubscriptions(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	var reloaded subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&reloaded, "id = ?", lapsed.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusTrial, reloaded.Status)
}

func TestExpireSubscriptions_Live(t *testing.T) {
	f := newSchedulerFixture(t)
	lapsed := expirableSubscription(t, f, f.now.AddDate(0, 0, -1))

	report, err := f.scheduler.ExpireSubscriptions(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.False(t, report.Failed())

	var reloaded subscriptiondomain.Subscription
	require.NoError(t, f.db.First(&reloaded, "id = ?", lapsed.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, reloaded.Status)
}

func (f *schedulerFixture) createFee(t *testing.T, dueDate time.Time, status feedomain.FeeStatus, historical bool) *feedomain.Fee {
	t.Helper()
	month := 6
	fee := &feedomain.Fee{
		ID:           f.genID.Generate(),
		TenantID:     f.genID.Generate(),
		UnitID:       f.genID.Generate(),
		PeriodYear:   2025,
		PeriodMonth:  &month,
		Kind:         feedomain.FeeKindRegular,
		Amount:       decimal.RequireFromString("100.00"),
		DueDate:      dueDate,
		Status:       status,
		IsHistorical: historical,
		Reference:    fmt.Sprintf("ref-%d", f.genID.Generate()),
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	require.NoError(t, f.db.Create(fee).Error)
	return fee
}

func TestMarkOverdueFees_FlipsPastDuePending(t *testing.T) {
	f := newSchedulerFixture(t)
	lapsed := f.createFee(t, f.now.AddDate(0, 0, -5), feedomain.FeeStatusPending, false)
	future := f.createFee(t, f.now.AddDate(0, 0, 5), feedomain.FeeStatusPending, false)
	settled := f.createFee(t, f.now.AddDate(0, 0, -5), feedomain.FeeStatusPaid, false)
	archived := f.createFee(t, f.now.AddDate(0, 0, -5), feedomain.FeeStatusPending, true)

	report, err := f.scheduler.MarkOverdueFees(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.False(t, report.Failed())

	statusOf := func(id snowflake.ID) feedomain.FeeStatus {
		var fee feedomain.Fee
		require.NoError(t, f.db.First(&fee, "id = ?", id).Error)
		return fee.Status
	}
	assert.Equal(t, feedomain.FeeStatusOverdue, statusOf(lapsed.ID))
	assert.Equal(t, feedomain.FeeStatusPending, statusOf(future.ID))
	assert.Equal(t, feedomain.FeeStatusPaid, statusOf(settled.ID))
	assert.Equal(t, feedomain.FeeStatusPending, statusOf(archived.ID))
}

func TestMarkOverdueFees_DryRunCountsOnly(t *testing.T) {
	f := newSchedulerFixture(t)
	lapsed := f.createFee(t, f.now.AddDate(0, 0, -5), feedomain.FeeStatusPending, false)

	report, err := f.scheduler.MarkOverdueFees(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	var reloaded feedomain.Fee
	require.NoError(t, f.db.First(&reloaded, "id = ?", lapsed.ID).Error)
	assert.Equal(t, feedomain.FeeStatusPending, reloaded.Status)
}

func TestDispatchEvents_AdvancesOffset(t *testing.T) {
	f := newSchedulerFixture(t)
	emitter := events.NewEmitter(f.genID)
	require.NoError(t, emitter.Emit(context.Background(), f.db, events.TypeFeePaid, map[string]any{"fee_id": "1"}))
	require.NoError(t, emitter.Emit(context.Background(), f.db, events.TypeTenantDetached, map[string]any{"tenant_id": "2"}))

	report, err := f.scheduler.DispatchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	// A second drain finds nothing new.
	report, err = f.scheduler.DispatchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
}

func TestJobReport_Summary(t *testing.T) {
	report := &JobReport{Job: "generate_monthly_fees", DryRun: true, Created: 3, Skipped: 1}
	assert.Equal(t, "generate_monthly_fees (dry-run): created=3 skipped=1 errors=0", report.Summary())

	report.AddError("42", assert.AnError)
	assert.True(t, report.Failed())
	assert.Contains(t, report.Summary(), "42: ")
}
