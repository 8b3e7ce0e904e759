package regfile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarchlab/cachecore/regfile"
)

func TestNewRejectsZeroEntries(t *testing.T) {
	_, err := regfile.New[int](0)
	require.Error(t, err)
}

func TestWriteThenReadNextCycle(t *testing.T) {
	f, err := regfile.New[int](4)
	require.NoError(t, err)

	f.Step(nil, []regfile.WritePort[int]{{En: true, Addr: 2, Data: 42}})

	out := f.Step([]regfile.ReadPort{{En: true, Addr: 2}}, nil)
	require.Equal(t, []int{42}, out)
}

func TestSameCycleWriteForwarding(t *testing.T) {
	f, err := regfile.New[int](4)
	require.NoError(t, err)

	out := f.Step(
		[]regfile.ReadPort{{En: true, Addr: 1}},
		[]regfile.WritePort[int]{{En: true, Addr: 1, Data: 7}},
	)
	require.Equal(t, []int{7}, out, "read must observe the same-cycle write")
}

func TestConflictingWritesLaterIndexWins(t *testing.T) {
	f, err := regfile.New[int](4)
	require.NoError(t, err)

	out := f.Step(
		[]regfile.ReadPort{{En: true, Addr: 0}},
		[]regfile.WritePort[int]{
			{En: true, Addr: 0, Data: 1},
			{En: true, Addr: 0, Data: 2},
		},
	)
	require.Equal(t, []int{2}, out)

	committed := f.Step([]regfile.ReadPort{{En: true, Addr: 0}}, nil)
	require.Equal(t, []int{2}, committed)
}

func TestDisabledReadReturnsZeroValue(t *testing.T) {
	f, err := regfile.New[int](2)
	require.NoError(t, err)

	out := f.Step([]regfile.ReadPort{{En: false, Addr: 0}}, nil)
	require.Equal(t, []int{0}, out)
}
