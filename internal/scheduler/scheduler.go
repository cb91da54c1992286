// Package scheduler hosts the cron-style batch jobs that drive the engine.
// Each tenant's work runs in its own transaction so an interrupted run leaves
// no partial per-tenant state and can simply be re-run.
package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/budget"
	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/events"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	feeservice "github.com/condolabs/condoledger/internal/fee/service"
	"github.com/condolabs/condoledger/internal/joblock"
	"github.com/condolabs/condoledger/internal/observability"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
	"github.com/condolabs/condoledger/internal/verify"
)

type Scheduler struct {
	db  *gorm.DB
	log *zap.Logger

	clock      clock.Clock
	locker     *joblock.Locker
	generator  *feeservice.Generator
	ledger     subscriptiondomain.Service
	subRepo    subscriptiondomain.Repository
	feeRepo    feedomain.Repository
	dispatcher *events.Dispatcher
	verifier   *verify.Verifier
}

type SchedulerParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Locker     *joblock.Locker
	Generator  *feeservice.Generator
	Ledger     subscriptiondomain.Service
	SubRepo    subscriptiondomain.Repository
	FeeRepo    feedomain.Repository
	Dispatcher *events.Dispatcher
	Verifier   *verify.Verifier
}

func New(p SchedulerParam) *Scheduler {
	return &Scheduler{
		db:  p.DB,
		log: p.Log.Named("scheduler"),

		clock:      p.Clock,
		locker:     p.Locker,
		generator:  p.Generator,
		ledger:     p.Ledger,
		subRepo:    p.SubRepo,
		feeRepo:    p.FeeRepo,
		dispatcher: p.Dispatcher,
		verifier:   p.Verifier,
	}
}

type GenerateMonthlyFeesRequest struct {
	Year  int
	Month int
	// TenantID narrows the run to one tenant; zero means all tenants.
	TenantID snowflake.ID
	DryRun   bool
}

// GenerateMonthlyFees materializes regular fees for every (or one) tenant.
// Tenants without an approved budget are skipped, not failed: budget approval
// is a workflow state, not a defect.
func (s *Scheduler) GenerateMonthlyFees(ctx context.Context, req GenerateMonthlyFeesRequest) (*JobReport, error) {
	report := &JobReport{Job: "generate_monthly_fees", DryRun: req.DryRun}

	release, err := s.locker.Acquire(ctx, report.Job)
	if err != nil {
		return report, err
	}
	defer release()

	tenantIDs, err := s.targetTenants(ctx, req.TenantID)
	if err != nil {
		return report, err
	}

	for _, tenantID := range tenantIDs {
		result, err := s.generator.GenerateRegularFees(ctx, feeservice.GenerateRegularRequest{
			TenantID: tenantID,
			Year:     req.Year,
			Month:    req.Month,
			DryRun:   req.DryRun,
		})
		if err != nil {
			if errors.Is(err, budget.ErrNoApprovedBudget) {
				report.Skipped++
				continue
			}
			observability.JobErrors.WithLabelValues(report.Job).Inc()
			report.AddError(tenantID.String(), err)
			continue
		}
		report.Created += result.Created
		report.Skipped += result.Skipped
	}

	s.log.Info("monthly fee generation finished",
		zap.Int("tenants", len(tenantIDs)),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)),
		zap.Bool("dry_run", req.DryRun),
	)
	return report, nil
}

// ExpireSubscriptions expires every subscription whose trial or paid period
// has lapsed. Dry run reports the same candidates without transitioning them.
func (s *Scheduler) ExpireSubscriptions(ctx context.Context, dryRun bool) (*JobReport, error) {
	report := &JobReport{Job: "expire_subscriptions", DryRun: dryRun}

	release, err := s.locker.Acquire(ctx, report.Job)
	if err != nil {
		return report, err
	}
	defer release()

	now := s.clock.Now(ctx)
	candidates, err := s.subRepo.ListExpirable(ctx, s.db, now)
	if err != nil {
		return report, err
	}

	for _, subscription := range candidates {
		if dryRun {
			report.Created++
			continue
		}
		if err := s.ledger.ExpireSubscription(ctx, subscription.ID); err != nil {
			observability.JobErrors.WithLabelValues(report.Job).Inc()
			report.AddError(subscription.ID.String(), err)
			continue
		}
		report.Created++
	}

	s.log.Info("subscription expiry finished",
		zap.Int("expired", report.Created),
		zap.Int("errors", len(report.Errors)),
		zap.Bool("dry_run", dryRun),
	)
	return report, nil
}

// MarkOverdueFees flips pending fees past their due date to overdue.
// Historical fees carried over for bookkeeping are exempt from the sweep.
func (s *Scheduler) MarkOverdueFees(ctx context.Context, dryRun bool) (*JobReport, error) {
	report := &JobReport{Job: "mark_overdue_fees", DryRun: dryRun}

	release, err := s.locker.Acquire(ctx, report.Job)
	if err != nil {
		return report, err
	}
	defer release()

	now := s.clock.Now(ctx)
	if dryRun {
		count, err := s.feeRepo.CountPastDue(ctx, s.db, now)
		if err != nil {
			return report, err
		}
		report.Created = int(count)
	} else {
		moved, err := s.feeRepo.MarkOverdue(ctx, s.db, now)
		if err != nil {
			observability.JobErrors.WithLabelValues(report.Job).Inc()
			report.AddError("fees", err)
			return report, nil
		}
		report.Created = int(moved)
	}

	s.log.Info("overdue sweep finished",
		zap.Int("marked", report.Created),
		zap.Bool("dry_run", dryRun),
	)
	return report, nil
}

// DispatchEvents drains the outbox once.
func (s *Scheduler) DispatchEvents(ctx context.Context) (*JobReport, error) {
	report := &JobReport{Job: "dispatch_events"}

	release, err := s.locker.Acquire(ctx, report.Job)
	if err != nil {
		return report, err
	}
	defer release()

	processed, err := s.dispatcher.ProcessEvents(ctx)
	report.Created = processed
	if err != nil {
		observability.JobErrors.WithLabelValues(report.Job).Inc()
		report.AddError("dispatcher", err)
	}
	return report, nil
}

// Verify runs the integrity checks; each finding counts as an error unless it
// was fixed.
func (s *Scheduler) Verify(ctx context.Context, fix bool) (*JobReport, error) {
	report := &JobReport{Job: "verify"}

	result, err := s.verifier.Run(ctx, fix)
	if err != nil {
		return report, err
	}
	for _, finding := range result.Findings {
		if finding.Fixed {
			report.Created++
			continue
		}
		report.AddError(finding.EntityID.String(), errors.New(string(finding.Kind)+": "+finding.Detail))
	}
	return report, nil
}

func (s *Scheduler) targetTenants(ctx context.Context, tenantID snowflake.ID) ([]snowflake.ID, error) {
	if tenantID != 0 {
		return []snowflake.ID{tenantID}, nil
	}
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Model(&tenantdomain.Tenant{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
