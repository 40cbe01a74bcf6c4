package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), f.Now())

	require.NoError(t, f.SleepCtx(t.Context(), 5*time.Second))
	require.NoError(t, f.SleepCtx(t.Context(), 2*time.Second))
	assert.Equal(t, start.Add(time.Minute+7*time.Second), f.Now())
	assert.Equal(t, []time.Duration{5 * time.Second, 2 * time.Second}, f.Sleeps())
}

func TestFake_SleepCtxCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.Error(t, f.SleepCtx(ctx, time.Second))
	assert.Empty(t, f.Sleeps())
}

func TestSystem_SleepCtx(t *testing.T) {
	clk := System()
	require.NoError(t, clk.SleepCtx(t.Context(), time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.Error(t, clk.SleepCtx(ctx, time.Hour))
	require.NoError(t, clk.SleepCtx(t.Context(), 0))
}
