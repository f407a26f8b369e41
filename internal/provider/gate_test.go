package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateBurstThenThrottle(t *testing.T) {
	g := NewGate(Limits{Rate: 20, Burst: 2})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	require.NoError(t, g.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "burst is immediate")

	require.NoError(t, g.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "third token waits for refill")
}

func TestGateUnlimited(t *testing.T) {
	g := NewGate(Limits{})
	for range 100 {
		require.NoError(t, g.Wait(context.Background()))
	}
}

func TestGateCooldownMonotonic(t *testing.T) {
	g := NewGate(Limits{Rate: 1000, Burst: 10, Cooldown: 10 * time.Millisecond})

	g.Cooldown(80 * time.Millisecond)
	g.Cooldown(time.Millisecond) // shorter deadline must not shrink the window
	assert.True(t, g.CoolingDown())

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.False(t, g.CoolingDown())
}

func TestGateWaitCancelledDuringCooldown(t *testing.T) {
	g := NewGate(Limits{Rate: 1000, Burst: 10})
	g.Cooldown(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestGatesShared(t *testing.T) {
	gates := NewGates()
	a := gates.For(NameTMDb, Limits{Rate: 1})
	b := gates.For(NameTMDb, Limits{Rate: 99})
	c := gates.For(NameOMDb, Limits{Rate: 1})
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
