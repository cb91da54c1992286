package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }
func boolPtr(v bool) *bool { return &v }

func TestLive(t *testing.T) {
	assert.True(t, Subscription{Status: SubscriptionStatusTrial}.Live())
	assert.True(t, Subscription{Status: SubscriptionStatusActive}.Live())
	assert.False(t, Subscription{Status: SubscriptionStatusSuspended}.Live())
	assert.False(t, Subscription{Status: SubscriptionStatusExpired}.Live())
	assert.False(t, Subscription{Status: SubscriptionStatusCanceled}.Live())
}

func TestEffectiveLicenseLimit(t *testing.T) {
	// Subscription override wins over the plan default.
	limit, capped := Subscription{LicenseLimit: i64(100)}.EffectiveLicenseLimit(i64(50))
	assert.True(t, capped)
	assert.Equal(t, int64(100), limit)

	limit, capped = Subscription{}.EffectiveLicenseLimit(i64(50))
	assert.True(t, capped)
	assert.Equal(t, int64(50), limit)

	_, capped = Subscription{}.EffectiveLicenseLimit(nil)
	assert.False(t, capped)
}

func TestEffectiveAllowOverage(t *testing.T) {
	assert.True(t, Subscription{AllowOverage: boolPtr(true)}.EffectiveAllowOverage(false))
	assert.False(t, Subscription{AllowOverage: boolPtr(false)}.EffectiveAllowOverage(true))
	assert.True(t, Subscription{}.EffectiveAllowOverage(true))
	assert.False(t, Subscription{}.EffectiveAllowOverage(false))
}

func TestTransitionAllowed(t *testing.T) {
	assert.True(t, TransitionAllowed(SubscriptionStatusTrial, SubscriptionStatusActive))
	assert.True(t, TransitionAllowed(SubscriptionStatusTrial, SubscriptionStatusExpired))
	assert.True(t, TransitionAllowed(SubscriptionStatusActive, SubscriptionStatusSuspended))
	assert.True(t, TransitionAllowed(SubscriptionStatusSuspended, SubscriptionStatusActive))
	assert.True(t, TransitionAllowed(SubscriptionStatusExpired, SubscriptionStatusActive))

	assert.False(t, TransitionAllowed(SubscriptionStatusCanceled, SubscriptionStatusActive))
	assert.False(t, TransitionAllowed(SubscriptionStatusExpired, SubscriptionStatusSuspended))
	assert.False(t, TransitionAllowed(SubscriptionStatusTrial, SubscriptionStatusSuspended))
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("active")
	assert.NoError(t, err)
	assert.Equal(t, SubscriptionStatusActive, status)

	_, err = ParseStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
