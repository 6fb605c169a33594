package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weex-grid-bot-go/internal/models"
)

func TestComputeGridLong(t *testing.T) {
	lower, upper, prices, err := ComputeGrid(50000, models.Long, 5, 0.03, 0.1)
	require.NoError(t, err)

	assert.InDelta(t, 48500.0, lower, 0.2)
	assert.InDelta(t, 51500.0, upper, 0.2)
	require.Len(t, prices, 5)

	expected := []float64{48500, 49250, 50000, 50750, 51500}
	for i, want := range expected {
		assert.InDelta(t, want, prices[i], 0.2, "price %d", i)
	}

	for i := 1; i < len(prices); i++ {
		assert.Greater(t, prices[i], prices[i-1], "long ladder must ascend")
	}
}

func TestComputeGridShortDescends(t *testing.T) {
	_, _, prices, err := ComputeGrid(50000, models.Short, 5, 0.03, 0.1)
	require.NoError(t, err)
	require.Len(t, prices, 5)

	for i := 1; i < len(prices); i++ {
		assert.Less(t, prices[i], prices[i-1], "short ladder must descend")
	}
}

func TestComputeGridBoundsSnapped(t *testing.T) {
	lower, upper, _, err := ComputeGrid(50000, models.Long, 5, 0.03, 0.1)
	require.NoError(t, err)
	assert.Equal(t, lower, SnapToTick(lower, 0.1))
	assert.Equal(t, upper, SnapToTick(upper, 0.1))
}

func TestComputeGridInvalidDirection(t *testing.T) {
	_, _, _, err := ComputeGrid(50000, models.Direction("sideways"), 5, 0.03, 0.1)
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "direction", vErr.Field)
}

func TestComputeGridSingleLevel(t *testing.T) {
	lower, _, prices, err := ComputeGrid(50000, models.Long, 1, 0.03, 0.1)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, lower, prices[0])
}

func TestComputeGridDropsDuplicates(t *testing.T) {
	// A huge tick relative to the range collapses neighboring candidates.
	_, _, prices, err := ComputeGrid(100, models.Long, 10, 0.01, 1)
	require.NoError(t, err)
	assert.Less(t, len(prices), 10)
	for i := 1; i < len(prices); i++ {
		assert.GreaterOrEqual(t, prices[i]-prices[i-1], 0.5)
	}
}

func TestSnapToTick(t *testing.T) {
	assert.Equal(t, 50000.1, SnapToTick(50000.12345, 0.1))
	assert.Equal(t, 50000.16, SnapToTick(50000.16789, 0.01))
	assert.Equal(t, 50000.5, SnapToTick(50000.7, 0.5))
	assert.Equal(t, 50000.0, SnapToTick(50000.9, 1))
}

func TestSnapToTickIdempotent(t *testing.T) {
	for _, tick := range []float64{0.1, 0.01, 0.5, 1} {
		once := SnapToTick(50123.4567, tick)
		assert.Equal(t, once, SnapToTick(once, tick), "tick %v", tick)
	}
}

func TestShouldRebuild(t *testing.T) {
	assert.False(t, ShouldRebuild(50000, 51500, 48500))
	assert.False(t, ShouldRebuild(51500, 51500, 48500), "at upper bound")
	assert.False(t, ShouldRebuild(48500, 51500, 48500), "at lower bound")
	assert.True(t, ShouldRebuild(51500.1, 51500, 48500))
	assert.True(t, ShouldRebuild(48499.9, 51500, 48500))
}

func TestNextTarget(t *testing.T) {
	prices := []float64{48500, 49125, 49750, 50375, 51000}

	target, ok := NextTarget(49750, prices, models.Long)
	require.True(t, ok)
	assert.Equal(t, 50375.0, target)

	// Strictly above: a fill exactly on a rung targets the next one up.
	target, ok = NextTarget(50375, prices, models.Long)
	require.True(t, ok)
	assert.Equal(t, 51000.0, target)

	_, ok = NextTarget(51000, prices, models.Long)
	assert.False(t, ok, "no rung above the top")

	target, ok = NextTarget(49750, prices, models.Short)
	require.True(t, ok)
	assert.Equal(t, 49125.0, target)

	_, ok = NextTarget(48500, prices, models.Short)
	assert.False(t, ok, "no rung below the bottom")
}

func TestNextTargetUnsortedInput(t *testing.T) {
	prices := []float64{51000, 48500, 50375, 49750, 49125}
	target, ok := NextTarget(49000, prices, models.Long)
	require.True(t, ok)
	assert.Equal(t, 49125.0, target)
}
