package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type StartTrialRequest struct {
	OwnerID       snowflake.ID
	PlanID        snowflake.ID
	TrialDays     int
	ChargeMinimum bool
	ActorID       snowflake.ID
}

type AttachTenantRequest struct {
	SubscriptionID snowflake.ID
	TenantID       snowflake.ID
	ActorID        snowflake.ID
}

type DetachTenantRequest struct {
	SubscriptionID snowflake.ID
	TenantID       snowflake.ID
	ActorID        snowflake.ID
	Reason         string
}

// Service is the subscription ledger: it owns capacity policy and is the
// single writer of the used-licenses cache.
type Service interface {
	StartTrial(ctx context.Context, req StartTrialRequest) (Subscription, error)
	Recalculate(ctx context.Context, subscriptionID snowflake.ID) (int64, error)
	AttachTenant(ctx context.Context, req AttachTenantRequest) error
	DetachTenant(ctx context.Context, req DetachTenantRequest) error
	ExpireSubscription(ctx context.Context, subscriptionID snowflake.ID) error
	UnlockAfterPayment(ctx context.Context, subscriptionID snowflake.ID) error
	GetByID(ctx context.Context, subscriptionID snowflake.ID) (Subscription, error)
}
