package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/events"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	"github.com/condolabs/condoledger/internal/observability"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	"github.com/condolabs/condoledger/internal/payment/repository"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    *repository.Repository
	feeRepo feedomain.Repository
	emitter events.Emitter
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    *repository.Repository
	FeeRepo feedomain.Repository
	Emitter events.Emitter
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.allocator"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		feeRepo: p.FeeRepo,
		emitter: p.Emitter,
	}
}

// Apply settles the unit's outstanding fees strictly oldest period first. A
// payment nominally targeting a newer fee still starts at the oldest unpaid
// one; sequential settlement is a business rule, not an artifact. Whatever
// remains after the last outstanding fee becomes unit credit.
func (s *Service) Apply(ctx context.Context, req paymentdomain.ApplyRequest) (paymentdomain.AllocationResult, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.AllocationResult{}, paymentdomain.ErrInvalidAmount
	}

	var result paymentdomain.AllocationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := s.repo.FindUnitForUpdate(ctx, tx, req.UnitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return tenantdomain.ErrUnitNotFound
		}

		now := s.clock.Now(ctx)
		if req.AppliedAt.IsZero() {
			req.AppliedAt = now
		}
		payment := &paymentdomain.Payment{
			ID:        s.genID.Generate(),
			UnitID:    req.UnitID,
			Amount:    req.Amount,
			AppliedAt: req.AppliedAt,
			CreatedAt: now,
		}
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		result.PaymentID = payment.ID

		fees, err := s.feeRepo.ListUnpaidForUnit(ctx, tx, req.UnitID)
		if err != nil {
			return err
		}

		remaining := req.Amount
		for _, fee := range fees {
			if !remaining.IsPositive() {
				break
			}

			applied, err := s.repo.AppliedToFee(ctx, tx, fee.ID)
			if err != nil {
				return err
			}
			outstanding := fee.Amount.Sub(applied)
			if !outstanding.IsPositive() {
				// Fully covered by earlier payments but never flipped; repair
				// the status and move on.
				if err := s.feeRepo.UpdateStatus(ctx, tx, fee.ID, feedomain.FeeStatusPaid); err != nil {
					return err
				}
				continue
			}

			portion := decimal.Min(outstanding, remaining)
			if err := s.repo.InsertFeePayment(ctx, tx, &paymentdomain.FeePayment{
				ID:        s.genID.Generate(),
				FeeID:     fee.ID,
				PaymentID: payment.ID,
				Amount:    portion,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			remaining = remaining.Sub(portion)

			settled := portion.Equal(outstanding)
			if settled {
				if err := s.feeRepo.UpdateStatus(ctx, tx, fee.ID, feedomain.FeeStatusPaid); err != nil {
					return err
				}
				if err := s.emitter.Emit(ctx, tx, events.TypeFeePaid, map[string]any{
					"fee_id":     fee.ID.String(),
					"unit_id":    req.UnitID.String(),
					"payment_id": payment.ID.String(),
					"reference":  fee.Reference,
				}); err != nil {
					return err
				}
			}

			result.Allocations = append(result.Allocations, paymentdomain.FeeAllocation{
				FeeID:   fee.ID,
				Amount:  portion,
				Settled: settled,
			})
		}

		result.Credit = decimal.Zero
		if remaining.IsPositive() {
			if err := s.repo.InsertCredit(ctx, tx, &paymentdomain.UnitCredit{
				ID:        s.genID.Generate(),
				UnitID:    req.UnitID,
				PaymentID: payment.ID,
				Amount:    remaining,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			result.Credit = remaining
		}

		return nil
	})
	if err != nil {
		return paymentdomain.AllocationResult{}, err
	}

	observability.PaymentsAllocated.Inc()
	s.log.Info("payment allocated",
		zap.String("unit_id", req.UnitID.String()),
		zap.String("amount", req.Amount.String()),
		zap.Int("fees_touched", len(result.Allocations)),
		zap.String("credit", result.Credit.String()),
	)
	return result, nil
}

func (s *Service) GetOutstandingBalance(ctx context.Context, unitID snowflake.ID) (decimal.Decimal, error) {
	return s.repo.OutstandingForUnit(ctx, s.db, unitID)
}
