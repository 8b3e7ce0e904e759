package fifo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarchlab/cachecore/fifo"
)

func TestReadyValidReflectFullEmpty(t *testing.T) {
	f, err := fifo.New[int](2)
	require.NoError(t, err)

	require.True(t, f.InReady())
	require.False(t, f.OutValid())

	f.Step(true, 1, false)
	require.True(t, f.InReady())
	require.True(t, f.OutValid())

	f.Step(true, 2, false)
	require.False(t, f.InReady(), "fifo should report full at capacity")
}

func TestFIFOOrdering(t *testing.T) {
	f, err := fifo.New[int](4)
	require.NoError(t, err)

	f.Step(true, 10, false)
	f.Step(true, 20, false)
	f.Step(true, 30, false)

	v, ok := f.Step(false, 0, true)
	require.True(t, ok)
	require.Equal(t, 10, v)

	v, ok = f.Step(false, 0, true)
	require.True(t, ok)
	require.Equal(t, 20, v)
}

func TestZeroCycleBypassWhenEmpty(t *testing.T) {
	f, err := fifo.New[int](4)
	require.NoError(t, err)

	v, ok := f.Step(true, 99, true)
	require.True(t, ok)
	require.Equal(t, 99, v)
	require.Equal(t, 0, f.Len(), "bypassed item must not be left queued")
}

func TestPushAndPopSameCycleWhenNonEmpty(t *testing.T) {
	f, err := fifo.New[int](4)
	require.NoError(t, err)

	f.Step(true, 1, false)

	v, ok := f.Step(true, 2, true)
	require.True(t, ok)
	require.Equal(t, 1, v, "pop must return the existing head, not the new push")
	require.Equal(t, 1, f.Len())
}

func TestPushWhilePanics(t *testing.T) {
	f, err := fifo.New[int](1)
	require.NoError(t, err)
	f.Step(true, 1, false)

	require.Panics(t, func() {
		f.Step(true, 2, false)
	})
}
