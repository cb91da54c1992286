package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/budget"
	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/config"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	"github.com/condolabs/condoledger/internal/observability"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

// errDryRun forces transaction rollback after a dry run has collected its
// would-change report.
var errDryRun = errors.New("dry_run_rollback")

var twelve = decimal.NewFromInt(12)

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
)

type ResultEntry struct {
	UnitID    snowflake.ID
	Reference string
	Amount    decimal.Decimal
	Outcome   Outcome
}

type Result struct {
	Created int
	Skipped int
	Entries []ResultEntry
}

type GenerateRegularRequest struct {
	TenantID snowflake.ID
	Year     int
	Month    int
	DryRun   bool
}

type GenerateExtraRequest struct {
	TenantID    snowflake.ID
	Year        int
	Months      []int
	TotalAmount decimal.Decimal
	Label       string
	// UnitIDs narrows the target units; empty means all billable units.
	UnitIDs []snowflake.ID
	DryRun  bool
}

type Generator struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       feedomain.Repository
	tenantRepo tenantdomain.Repository
	budgets    budget.Provider
	dueDay     int
}

type GeneratorParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       feedomain.Repository
	TenantRepo tenantdomain.Repository
	Budgets    budget.Provider
}

func NewGenerator(p GeneratorParam) *Generator {
	return &Generator{
		db:  p.DB,
		log: p.Log.Named("fee.generator"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tenantRepo: p.TenantRepo,
		budgets:    p.Budgets,
		dueDay:     p.Config.Jobs.FeeDueDay,
	}
}

// GenerateRegularFees materializes one regular fee per billable unit for the
// given month, funded by the tenant's approved annual budget. Existing fees
// are skipped, never duplicated; the skip is an explicit existence check, not
// a swallowed constraint violation.
func (g *Generator) GenerateRegularFees(ctx context.Context, req GenerateRegularRequest) (Result, error) {
	if err := feedomain.ValidateMonth(req.Month); err != nil {
		return Result{}, err
	}

	var result Result
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		approved, err := g.budgets.GetApprovedBudget(ctx, tx, req.TenantID, req.Year)
		if err != nil {
			return err
		}

		units, err := g.tenantRepo.ListBillableUnits(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return nil
		}

		monthlyTotal := approved.TotalRevenue.Div(twelve)
		totalWeight := sumWeights(units)
		dueDate := g.dueDate(req.Year, req.Month)

		for _, unit := range units {
			amount := proportionalShare(monthlyTotal, unit.Weight, totalWeight)
			entry, err := g.materialize(ctx, tx, materializeParams{
				tenantID: req.TenantID,
				unit:     unit,
				year:     req.Year,
				month:    req.Month,
				kind:     feedomain.FeeKindRegular,
				label:    "",
				amount:   amount,
				dueDate:  dueDate,
				dryRun:   req.DryRun,
			})
			if err != nil {
				return err
			}
			result.addEntry(entry)
		}

		if req.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return Result{}, err
	}

	g.log.Info("regular fees generated",
		zap.String("tenant_id", req.TenantID.String()),
		zap.Int("year", req.Year),
		zap.Int("month", req.Month),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Bool("dry_run", req.DryRun),
	)
	return result, nil
}

// GenerateExtraFees spreads a one-off total evenly across months and, within
// each month, across the targeted units proportionally to weight.
func (g *Generator) GenerateExtraFees(ctx context.Context, req GenerateExtraRequest) (Result, error) {
	if len(req.Months) == 0 {
		return Result{}, feedomain.ErrInvalidPeriod
	}
	for _, month := range req.Months {
		if err := feedomain.ValidateMonth(month); err != nil {
			return Result{}, err
		}
	}
	if req.TotalAmount.IsNegative() || req.TotalAmount.IsZero() {
		return Result{}, feedomain.ErrInvalidAmount
	}

	var result Result
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		units, err := g.targetUnits(ctx, tx, req.TenantID, req.UnitIDs)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return tenantdomain.ErrUnitNotFound
		}

		monthShare := req.TotalAmount.Div(decimal.NewFromInt(int64(len(req.Months))))
		totalWeight := sumWeights(units)

		for _, month := range req.Months {
			dueDate := g.dueDate(req.Year, month)
			for _, unit := range units {
				amount := proportionalShare(monthShare, unit.Weight, totalWeight)
				entry, err := g.materialize(ctx, tx, materializeParams{
					tenantID: req.TenantID,
					unit:     unit,
					year:     req.Year,
					month:    month,
					kind:     feedomain.FeeKindExtra,
					label:    req.Label,
					amount:   amount,
					dueDate:  dueDate,
					dryRun:   req.DryRun,
				})
				if err != nil {
					return err
				}
				result.addEntry(entry)
			}
		}

		if req.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return Result{}, err
	}
	return result, nil
}

type materializeParams struct {
	tenantID snowflake.ID
	unit     tenantdomain.Unit
	year     int
	month    int
	kind     feedomain.FeeKind
	label    string
	amount   decimal.Decimal
	dueDate  time.Time
	dryRun   bool
}

func (g *Generator) materialize(ctx context.Context, tx *gorm.DB, p materializeParams) (ResultEntry, error) {
	month := p.month
	reference := feedomain.Reference(p.tenantID, p.unit.ID, p.year, &month, p.kind, p.label)

	existing, err := g.repo.FindByReference(ctx, tx, reference)
	if err != nil {
		return ResultEntry{}, err
	}
	if existing != nil {
		if !p.dryRun {
			observability.FeesSkipped.WithLabelValues(string(p.kind)).Inc()
		}
		return ResultEntry{UnitID: p.unit.ID, Reference: reference, Amount: existing.Amount, Outcome: OutcomeSkipped}, nil
	}

	now := g.clock.Now(ctx)
	fee := &feedomain.Fee{
		ID:          g.genID.Generate(),
		TenantID:    p.tenantID,
		UnitID:      p.unit.ID,
		PeriodYear:  p.year,
		PeriodMonth: &month,
		Kind:        p.kind,
		Label:       p.label,
		Amount:      p.amount,
		DueDate:     p.dueDate,
		Status:      feedomain.FeeStatusPending,
		Reference:   reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.repo.Insert(ctx, tx, fee); err != nil {
		return ResultEntry{}, err
	}
	if !p.dryRun {
		observability.FeesGenerated.WithLabelValues(string(p.kind)).Inc()
	}
	return ResultEntry{UnitID: p.unit.ID, Reference: reference, Amount: p.amount, Outcome: OutcomeCreated}, nil
}

func (g *Generator) targetUnits(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, unitIDs []snowflake.ID) ([]tenantdomain.Unit, error) {
	units, err := g.tenantRepo.ListBillableUnits(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(unitIDs) == 0 {
		return units, nil
	}
	wanted := make(map[snowflake.ID]struct{}, len(unitIDs))
	for _, id := range unitIDs {
		wanted[id] = struct{}{}
	}
	subset := make([]tenantdomain.Unit, 0, len(unitIDs))
	for _, unit := range units {
		if _, ok := wanted[unit.ID]; ok {
			subset = append(subset, unit)
		}
	}
	return subset, nil
}

func (g *Generator) dueDate(year, month int) time.Time {
	return time.Date(year, time.Month(month), g.dueDay, 0, 0, 0, 0, time.UTC)
}

// proportionalShare rounds per unit per period; the accumulated drift across
// units may reach one rounding unit each and is accepted, not redistributed.
func proportionalShare(total decimal.Decimal, weight, totalWeight int64) decimal.Decimal {
	if totalWeight == 0 {
		return decimal.Zero
	}
	return total.
		Mul(decimal.NewFromInt(weight)).
		Div(decimal.NewFromInt(totalWeight)).
		Round(2)
}

func sumWeights(units []tenantdomain.Unit) int64 {
	var total int64
	for _, unit := range units {
		total += unit.Weight
	}
	return total
}

func (r *Result) addEntry(entry ResultEntry) {
	r.Entries = append(r.Entries, entry)
	switch entry.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeSkipped:
		r.Skipped++
	}
}
