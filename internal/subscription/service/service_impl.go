package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/audit"
	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/events"
	"github.com/condolabs/condoledger/internal/license"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
	"github.com/condolabs/condoledger/internal/pricing"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

const (
	expiredLockReason = "subscription expired, payment pending"
	defaultTrialDays  = 30
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	planRepo   plandomain.Repository
	tenantRepo tenantdomain.Repository
	calculator *license.Calculator
	emitter    events.Emitter
	auditor    audit.Recorder
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	PlanRepo   plandomain.Repository
	TenantRepo tenantdomain.Repository
	Calculator *license.Calculator
	Emitter    events.Emitter
	Auditor    audit.Recorder
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		planRepo:   p.PlanRepo,
		tenantRepo: p.TenantRepo,
		calculator: p.Calculator,
		emitter:    p.Emitter,
		auditor:    p.Auditor,
	}
}

func (s *Service) GetByID(ctx context.Context, subscriptionID snowflake.ID) (subscriptiondomain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

// StartTrial opens a new subscription in trial status. The trial window also
// serves as the first billing period; expiry past TrialEndsAt is picked up by
// the expire job.
func (s *Service) StartTrial(ctx context.Context, req subscriptiondomain.StartTrialRequest) (subscriptiondomain.Subscription, error) {
	days := req.TrialDays
	if days <= 0 {
		days = defaultTrialDays
	}

	var created subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.FindByID(ctx, tx, req.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		now := s.clock.Now(ctx)
		trialEnd := now.AddDate(0, 0, days)
		created = subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			OwnerID:            req.OwnerID,
			PlanID:             plan.ID,
			Status:             subscriptiondomain.SubscriptionStatusTrial,
			ChargeMinimum:      req.ChargeMinimum,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   trialEnd,
			TrialEndsAt:        &trialEnd,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Insert(ctx, tx, &created); err != nil {
			return err
		}

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.trial_started",
			EntityKind:  "subscription",
			EntityID:    created.ID,
			After:       map[string]any{"plan_id": plan.ID.String(), "trial_ends_at": trialEnd.Format(time.RFC3339)},
			PerformedBy: req.ActorID,
		})
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("trial started",
		zap.String("subscription_id", created.ID.String()),
		zap.String("plan_id", created.PlanID.String()),
	)
	return created, nil
}

// Recalculate re-derives the used-licenses cache under the subscription row
// lock. Idempotent; this is the only code path that writes the cache.
func (s *Service) Recalculate(ctx context.Context, subscriptionID snowflake.ID) (int64, error) {
	var used int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		plan, err := s.planRepo.FindByID(ctx, tx, subscription.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		before := subscription.UsedLicenses
		used, err = s.recalculateLocked(ctx, tx, subscription, plan)
		if err != nil {
			return err
		}

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.recalculated",
			EntityKind:  "subscription",
			EntityID:    subscription.ID,
			Before:      map[string]any{"used_licenses": before},
			After:       map[string]any{"used_licenses": used},
			PerformedBy: 0,
		})
	})
	if err != nil {
		return 0, err
	}
	return used, nil
}

// recalculateLocked assumes the caller holds the subscription row lock.
func (s *Service) recalculateLocked(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	plan *plandomain.Plan,
) (int64, error) {
	aggregate, err := s.calculator.AggregateForSubscription(ctx, tx, subscription.ID)
	if err != nil {
		return 0, err
	}

	used := pricing.EffectiveUnits(aggregate, subscription.ChargeMinimum, plan.LicenseMin)
	if used < 0 {
		return 0, subscriptiondomain.ErrIntegrity
	}

	// Re-price the new usage. A tier gap here is a configuration defect and
	// fails the whole transaction rather than leaving a mispriced cache.
	tiers, err := s.planRepo.ListTiers(ctx, tx, plan.ID)
	if err != nil {
		return 0, err
	}
	charge, err := pricing.ComputeMonthlyCharge(plan, tiers, aggregate, subscription.ChargeMinimum)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now(ctx)
	if err := s.repo.UpdateUsedLicenses(ctx, tx, subscription.ID, used, now); err != nil {
		return 0, err
	}
	subscription.UsedLicenses = used

	s.log.Info("usage repriced",
		zap.String("subscription_id", subscription.ID.String()),
		zap.Int64("used_licenses", used),
		zap.String("monthly_charge", charge.String()),
	)
	return used, nil
}

func (s *Service) AttachTenant(ctx context.Context, req subscriptiondomain.AttachTenantRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !subscription.Live() {
			return subscriptiondomain.ErrSubscriptionInactive
		}

		tenant, err := s.tenantRepo.FindByIDForUpdate(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrTenantNotFound
		}

		plan, err := s.planRepo.FindByID(ctx, tx, subscription.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		// A single-tenant plan admits exactly one active attachment,
		// regardless of remaining capacity.
		if !plan.Kind.AllowsMultipleTenants() {
			attached, err := s.tenantRepo.CountActiveAttachments(ctx, tx, subscription.ID)
			if err != nil {
				return err
			}
			if attached > 0 {
				return &subscriptiondomain.SingleTenantViolationError{SubscriptionID: subscription.ID}
			}
		}

		existing, err := s.tenantRepo.FindActiveAttachmentByTenant(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.SubscriptionID == subscription.ID {
				// Already attached here; nothing to do.
				return nil
			}
			return tenantdomain.ErrTenantAlreadyBound
		}

		aggregate, err := s.calculator.AggregateForSubscription(ctx, tx, subscription.ID)
		if err != nil {
			return err
		}
		candidate, err := s.calculator.CountBillableUnits(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		prospective := pricing.EffectiveUnits(aggregate+candidate, subscription.ChargeMinimum, plan.LicenseMin)

		// An uncapped plan contributes no default limit, but an explicit
		// subscription-level override is enforced regardless of plan kind.
		planDefault := plan.LicenseLimitDefault
		if !plan.Kind.Capped() {
			planDefault = nil
		}
		if limit, capped := subscription.EffectiveLicenseLimit(planDefault); capped {
			if prospective > limit && !subscription.EffectiveAllowOverage(plan.AllowOverage) {
				return &subscriptiondomain.CapacityExceededError{
					SubscriptionID: subscription.ID,
					Prospective:    prospective,
					Limit:          limit,
				}
			}
		}

		now := s.clock.Now(ctx)
		attachment := &tenantdomain.TenantAttachment{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			TenantID:       req.TenantID,
			Status:         tenantdomain.AttachmentStatusActive,
			AttachedAt:     now,
			AttachedBy:     req.ActorID,
			CreatedAt:      now,
		}
		if err := s.tenantRepo.InsertAttachment(ctx, tx, attachment); err != nil {
			return err
		}
		if err := s.tenantRepo.BindSubscription(ctx, tx, req.TenantID, subscription.ID, now); err != nil {
			return err
		}

		if _, err := s.recalculateLocked(ctx, tx, subscription, plan); err != nil {
			return err
		}

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.tenant_attached",
			EntityKind:  "subscription",
			EntityID:    subscription.ID,
			After:       map[string]any{"tenant_id": req.TenantID.String(), "used_licenses": subscription.UsedLicenses},
			PerformedBy: req.ActorID,
		})
	})
}

func (s *Service) DetachTenant(ctx context.Context, req subscriptiondomain.DetachTenantRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		tenant, err := s.tenantRepo.FindByIDForUpdate(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrTenantNotFound
		}

		attachment, err := s.tenantRepo.FindActiveAttachment(ctx, tx, subscription.ID, req.TenantID)
		if err != nil {
			return err
		}
		if attachment == nil {
			return tenantdomain.ErrAttachmentNotFound
		}

		plan, err := s.planRepo.FindByID(ctx, tx, subscription.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		now := s.clock.Now(ctx)
		if err := s.tenantRepo.MarkDetached(ctx, tx, attachment.ID, now, req.ActorID, req.Reason); err != nil {
			return err
		}
		if err := s.tenantRepo.Lock(ctx, tx, req.TenantID, now, req.Reason); err != nil {
			return err
		}

		before := subscription.UsedLicenses
		if _, err := s.recalculateLocked(ctx, tx, subscription, plan); err != nil {
			return err
		}

		if err := s.emitter.Emit(ctx, tx, events.TypeTenantDetached, map[string]any{
			"subscription_id": subscription.ID.String(),
			"tenant_id":       req.TenantID.String(),
			"reason":          req.Reason,
		}); err != nil {
			return err
		}

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.tenant_detached",
			EntityKind:  "subscription",
			EntityID:    subscription.ID,
			Before:      map[string]any{"used_licenses": before},
			After:       map[string]any{"used_licenses": subscription.UsedLicenses, "reason": req.Reason},
			PerformedBy: req.ActorID,
		})
	})
}

// ExpireSubscription locks every attached tenant but leaves attachments
// active, so a later successful payment unlocks without re-attaching.
func (s *Service) ExpireSubscription(ctx context.Context, subscriptionID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status == subscriptiondomain.SubscriptionStatusExpired {
			return nil
		}
		if !subscriptiondomain.TransitionAllowed(subscription.Status, subscriptiondomain.SubscriptionStatusExpired) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now(ctx)
		previous := subscription.Status
		subscription.Status = subscriptiondomain.SubscriptionStatusExpired
		subscription.ExpiredAt = &now
		subscription.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, subscription); err != nil {
			return err
		}

		attachments, err := s.tenantRepo.ListActiveAttachments(ctx, tx, subscription.ID)
		if err != nil {
			return err
		}
		for _, attachment := range attachments {
			if err := s.tenantRepo.Lock(ctx, tx, attachment.TenantID, now, expiredLockReason); err != nil {
				return err
			}
		}

		if err := s.emitter.Emit(ctx, tx, events.TypeSubscriptionExpired, map[string]any{
			"subscription_id": subscription.ID.String(),
			"locked_tenants":  len(attachments),
		}); err != nil {
			return err
		}

		s.log.Info("subscription expired",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Int("locked_tenants", len(attachments)),
		)

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.expired",
			EntityKind:  "subscription",
			EntityID:    subscription.ID,
			Before:      map[string]any{"status": previous},
			After:       map[string]any{"status": subscription.Status, "expired_at": now.Format(time.RFC3339)},
			PerformedBy: 0,
		})
	})
}

// UnlockAfterPayment reactivates an expired subscription and unlocks its
// still-attached tenants.
func (s *Service) UnlockAfterPayment(ctx context.Context, subscriptionID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.SubscriptionStatusExpired &&
			subscription.Status != subscriptiondomain.SubscriptionStatusSuspended {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now(ctx)
		previous := subscription.Status
		subscription.Status = subscriptiondomain.SubscriptionStatusActive
		subscription.ExpiredAt = nil
		subscription.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, subscription); err != nil {
			return err
		}

		attachments, err := s.tenantRepo.ListActiveAttachments(ctx, tx, subscription.ID)
		if err != nil {
			return err
		}
		for _, attachment := range attachments {
			if err := s.tenantRepo.Unlock(ctx, tx, attachment.TenantID, now); err != nil {
				return err
			}
		}

		return s.auditor.Append(ctx, tx, audit.Record{
			Action:      "subscription.unlocked",
			EntityKind:  "subscription",
			EntityID:    subscription.ID,
			Before:      map[string]any{"status": previous},
			After:       map[string]any{"status": subscription.Status},
			PerformedBy: 0,
		})
	})
}
