package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchline/internal/domain"
)

func testReactors() []domain.Reactor {
	// Ascending by capacity, as ListReactors returns them.
	return []domain.Reactor{
		{ID: "r-small", CapacityKg: kg(1000)},
		{ID: "r-mid", CapacityKg: kg(2000)},
		{ID: "r-big", CapacityKg: kg(5000)},
	}
}

func TestSelectReactorBestFit(t *testing.T) {
	re, overflow, ok := SelectReactor(testReactors(), kg(1500))
	require.True(t, ok)
	assert.False(t, overflow)
	assert.Equal(t, "r-mid", re.ID)
}

func TestSelectReactorExactFitTakesSmallest(t *testing.T) {
	re, overflow, ok := SelectReactor(testReactors(), kg(1000))
	require.True(t, ok)
	assert.False(t, overflow)
	assert.Equal(t, "r-small", re.ID)
}

func TestSelectReactorOverflowFallback(t *testing.T) {
	re, overflow, ok := SelectReactor(testReactors(), kg(7000))
	require.True(t, ok)
	assert.True(t, overflow, "oversized batch must be flagged, not hidden")
	assert.Equal(t, "r-big", re.ID)
}

func TestSelectReactorNoneAvailable(t *testing.T) {
	_, _, ok := SelectReactor(nil, kg(100))
	assert.False(t, ok)
}
