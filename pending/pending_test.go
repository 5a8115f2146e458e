package pending

import (
	"testing"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/stretchr/testify/require"
)

func TestNextIDSkipsZeroAndIncrements(t *testing.T) {
	tbl := New(4)
	require.Equal(t, uint32(1), tbl.NextID())
	require.Equal(t, uint32(2), tbl.NextID())
	require.Equal(t, uint32(3), tbl.NextID())
}

func TestNextIDWrapsPastZero(t *testing.T) {
	tbl := New(4)
	tbl.nextID = 0xFFFFFFFF
	require.Equal(t, uint32(1), tbl.NextID())
}

func TestInsertRejectsOverCapacity(t *testing.T) {
	tbl := New(2)
	require.NoError(t, tbl.Insert(1, func(int32, []byte) {}))
	require.NoError(t, tbl.Insert(2, func(int32, []byte) {}))

	err := tbl.Insert(3, func(int32, []byte) {})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Backpressure))
	require.Equal(t, 2, tbl.Len())
}

func TestInsertRejectsCollisionWithLiveEntry(t *testing.T) {
	tbl := New(4)
	require.NoError(t, tbl.Insert(5, func(int32, []byte) {}))

	err := tbl.Insert(5, func(int32, []byte) {})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Backpressure))
}

func TestTakeIsIdempotentForUnknownID(t *testing.T) {
	tbl := New(4)
	_, ok := tbl.Take(99)
	require.False(t, ok)

	require.NoError(t, tbl.Insert(1, func(int32, []byte) {}))
	_, ok = tbl.Take(1)
	require.True(t, ok)

	_, ok = tbl.Take(1)
	require.False(t, ok)
}

func TestDrainInvokesEveryCompletionAndEmptiesTable(t *testing.T) {
	tbl := New(4)
	var got []int32
	for i := uint32(1); i <= 3; i++ {
		status := int32(i)
		require.NoError(t, tbl.Insert(i, func(s int32, _ []byte) { got = append(got, s) }))
		_ = status
	}

	tbl.Drain(int32(errs.Disconnected))
	require.Equal(t, 0, tbl.Len())
	require.Len(t, got, 3)
	for _, s := range got {
		require.Equal(t, int32(errs.Disconnected), s)
	}
}
