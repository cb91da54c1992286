package joblock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLocker(client, zap.NewNop(), time.Minute), mr
}

func TestAcquire_SecondCallerBlocked(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "generate_monthly_fees")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "generate_monthly_fees")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A different job is unrelated.
	otherRelease, err := locker.Acquire(ctx, "expire_subscriptions")
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := locker.Acquire(ctx, "generate_monthly_fees")
	require.NoError(t, err)
	release2()
}

func TestAcquire_LockExpiresWithTTL(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "verify")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	release, err := locker.Acquire(ctx, "verify")
	require.NoError(t, err)
	release()
}

func TestAcquire_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewLocker(client, zap.NewNop(), time.Minute)
	mr.Close()

	release, err := locker.Acquire(context.Background(), "generate_monthly_fees")
	require.NoError(t, err)
	release()
}
