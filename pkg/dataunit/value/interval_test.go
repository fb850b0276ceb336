package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntervalSortAndMergeDisjoint(t *testing.T) {
	ivs := []Interval{
		NewInterval(ClosedAt(Int64(10)), ClosedAt(Int64(20))),
		NewInterval(ClosedAt(Int64(15)), ClosedAt(Int64(25))),
		NewInterval(ClosedAt(Int64(40)), ClosedAt(Int64(50))),
		NewInterval(OpenAt(Int64(25)), ClosedAt(Int64(30))),
	}

	merged := SortAndMerge(ivs)
	require.Len(t, merged, 2)
	require.Equal(t, int64(10), merged[0].Low.Value.I64)
	require.Equal(t, int64(30), merged[0].High.Value.I64)
	require.Equal(t, int64(40), merged[1].Low.Value.I64)

	for i := 1; i < len(merged); i++ {
		require.True(t, merged[i-1].Less(merged[i]))
	}
}

func TestIntervalLessIsStrictWeakOrder(t *testing.T) {
	a := NewInterval(ClosedAt(Int64(1)), ClosedAt(Int64(5)))
	b := NewInterval(ClosedAt(Int64(1)), OpenAt(Int64(5)))
	c := NewInterval(ClosedAt(Int64(2)), ClosedAt(Int64(6)))

	require.False(t, a.Less(a))
	if a.Less(b) {
		require.False(t, b.Less(a))
	}
	require.True(t, a.Less(c) || c.Less(a) || (!a.Less(c) && !c.Less(a)))
}

func TestIntervalContains(t *testing.T) {
	iv := NewInterval(ClosedAt(Int64(10)), OpenAt(Int64(20)))
	require.True(t, iv.Contains(Int64(10)))
	require.True(t, iv.Contains(Int64(19)))
	require.False(t, iv.Contains(Int64(20)))
	require.False(t, iv.Contains(Int64(9)))

	unbounded := NewInterval(First_(), Last_())
	require.True(t, unbounded.Contains(Int64(-1000)))
}

func TestObjectIDOrdering(t *testing.T) {
	a := NewObjectID()
	b := NewObjectID()
	if a != b {
		require.True(t, a.Less(b) || b.Less(a))
	}
	parsed, err := ParseObjectID(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}
