package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayGrowsExponentially(t *testing.T) {
	cfg := Config{Base: 100 * time.Millisecond, Cap: time.Minute}

	assert.Equal(t, 100*time.Millisecond, Delay(cfg, 1, 1.0))
	assert.Equal(t, 200*time.Millisecond, Delay(cfg, 2, 1.0))
	assert.Equal(t, 400*time.Millisecond, Delay(cfg, 3, 1.0))
	assert.Equal(t, 800*time.Millisecond, Delay(cfg, 4, 1.0))
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := Config{Base: 100 * time.Millisecond, Cap: time.Minute}

	assert.Equal(t, 50*time.Millisecond, Delay(cfg, 1, 0.5))
	assert.Equal(t, 150*time.Millisecond, Delay(cfg, 1, 1.5))
}

func TestDelayCapped(t *testing.T) {
	cfg := Config{Base: 100 * time.Millisecond, Cap: 500 * time.Millisecond}

	assert.Equal(t, 500*time.Millisecond, Delay(cfg, 10, 1.0))
	assert.Equal(t, 500*time.Millisecond, Delay(cfg, 4, 1.5)) // 800*1.5 would exceed
}

func TestDelayClampsBadAttempt(t *testing.T) {
	cfg := Config{Base: 100 * time.Millisecond, Cap: time.Minute}
	assert.Equal(t, Delay(cfg, 1, 1.0), Delay(cfg, 0, 1.0))
}

func TestRandomJitterInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		j := randomJitter()
		assert.GreaterOrEqual(t, j, 0.5)
		assert.Less(t, j, 1.5)
	}
}

func TestDoRunsOnePlusMaxRetries(t *testing.T) {
	cfg := Config{MaxRetries: 3, Base: time.Millisecond, Cap: time.Millisecond}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("still broken")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestDoStopsOnSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 5, Base: time.Millisecond, Cap: time.Millisecond}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	cfg := Config{MaxRetries: 5, Base: time.Millisecond, Cap: time.Millisecond}

	boom := errors.New("bad payload")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return Permanent(boom)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, boom)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	cfg := Config{MaxRetries: 100, Base: 10 * time.Millisecond, Cap: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 3)
}

func TestPermanentNilStaysNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
}
