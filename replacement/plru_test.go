package replacement_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarchlab/cachecore/ports"
	"github.com/sarchlab/cachecore/replacement"
)

func TestNewTreePLRURejectsBadWays(t *testing.T) {
	_, err := replacement.NewTreePLRU(1)
	require.Error(t, err, "ways=1 should be rejected")

	_, err = replacement.NewTreePLRU(3)
	require.Error(t, err, "non-power-of-two ways should be rejected")

	_, err = replacement.NewTreePLRU(4)
	require.NoError(t, err)
}

func alloc(p replacement.Policy) int {
	ways := p.Step(nil, nil, []ports.AllocRequest{{Access: true}})
	return ways[0]
}

func TestTreePLRUAllocatesEachWayBeforeRepeating(t *testing.T) {
	p, err := replacement.NewTreePLRU(4)
	require.NoError(t, err)

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		way := alloc(p)
		require.False(t, seen[way], "way %d allocated twice before all ways seen", way)
		seen[way] = true
	}
	require.Len(t, seen, 4)
}

func TestTreePLRUHitProtectsWay(t *testing.T) {
	p, err := replacement.NewTreePLRU(4)
	require.NoError(t, err)

	// Touch every way once via alloc so the tree has a well-defined state.
	allocated := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		allocated = append(allocated, alloc(p))
	}
	_ = allocated

	// Hit way 0 once; it should not be chosen as a victim again
	// until every other way has been.
	p.Step([]ports.AccessPort{{Access: true, Way: 0}}, nil, nil)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		way := alloc(p)
		require.NotEqual(t, 0, way, "recently hit way should not be re-victimized yet")
		seen[way] = true
	}
	require.Len(t, seen, 3)
}

func TestTreePLRUInvalidateMakesNextVictim(t *testing.T) {
	p, err := replacement.NewTreePLRU(4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		alloc(p)
	}

	p.Step(nil, []ports.AccessPort{{Access: true, Way: 2}}, nil)
	require.Equal(t, 2, alloc(p), "invalidated way should be the next victim")
}

func TestTreePLRUMultiPortAllocChaining(t *testing.T) {
	p, err := replacement.NewTreePLRU(4)
	require.NoError(t, err)

	ways := p.Step(nil, nil, []ports.AllocRequest{
		{Access: true},
		{Access: true},
	})
	require.NotEqual(t, ways[0], ways[1], "simultaneous allocs must receive distinct ways")
}

func TestTreePLRUDisabledAllocReturnsNegativeOne(t *testing.T) {
	p, err := replacement.NewTreePLRU(2)
	require.NoError(t, err)

	ways := p.Step(nil, nil, []ports.AllocRequest{{Access: false}})
	require.Equal(t, -1, ways[0])
}
