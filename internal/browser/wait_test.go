package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Run("immediate success", func(t *testing.T) {
		var calls atomic.Int32
		err := Poll(context.Background(), time.Hour, time.Hour, func(context.Context) (bool, error) {
			calls.Add(1)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("eventual success", func(t *testing.T) {
		var calls atomic.Int32
		err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
			return calls.Add(1) >= 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("timeout", func(t *testing.T) {
		err := Poll(context.Background(), time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, ErrWaitTimeout)
	})

	t.Run("check error stops polling", func(t *testing.T) {
		boom := errors.New("boom")
		err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Poll(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestPollBoundsHangingChecks(t *testing.T) {
	t.Run("a hung check cannot outlast the wait", func(t *testing.T) {
		start := time.Now()
		err := Poll(context.Background(), time.Millisecond, 50*time.Millisecond, func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})
		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("a slow check is a miss and polling continues", func(t *testing.T) {
		var calls atomic.Int32
		err := Poll(context.Background(), time.Millisecond, 5*time.Second, func(ctx context.Context) (bool, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return false, ctx.Err()
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("cancellation of the caller wins over the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		err := Poll(ctx, time.Millisecond, time.Hour, func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
