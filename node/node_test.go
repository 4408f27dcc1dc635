package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaf(mode Mode) *BTreeNode {
	return New(mode, true, 128, 8)
}

func newInner(mode Mode) *BTreeNode {
	return New(mode, false, 128, 8)
}

func TestLeafPutInsertsSorted(t *testing.T) {
	n := newLeaf(Unique)
	for _, k := range []int64{5, 2, 8, 1, 9, 3} {
		ok, err := n.LeafPut(k, k*10, false)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, []int64{1, 2, 3, 5, 8, 9}, n.Keys)
	assert.Equal(t, []int64{10, 20, 30, 50, 80, 90}, n.Values)
	assert.True(t, n.sorted())
}

func TestLeafPutOnlyIfNotSet(t *testing.T) {
	n := newLeaf(Unique)
	ok, err := n.LeafPut(1, 100, true)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = n.LeafPut(1, 200, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{100}, n.Values)
}

func TestLeafPutOverwritesWithoutOnlyIfNotSet(t *testing.T) {
	n := newLeaf(Unique)
	_, _ = n.LeafPut(1, 100, false)
	ok, err := n.LeafPut(1, 200, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{200}, n.Values)
}

func TestLeafPutNonUniqueOrdersByKeyThenValue(t *testing.T) {
	n := newLeaf(NonUnique)
	for _, kv := range [][2]int64{{10, 3}, {10, 1}, {10, 2}, {20, 1}} {
		_, err := n.LeafPut(kv[0], kv[1], false)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{10, 10, 10, 20}, n.Keys)
	assert.Equal(t, []int64{1, 2, 3, 1}, n.Values)
}

func TestLeafDeleteRemovesExactEntry(t *testing.T) {
	n := newLeaf(NonUnique)
	for _, kv := range [][2]int64{{10, 1}, {10, 2}, {10, 3}, {20, 1}} {
		_, _ = n.LeafPut(kv[0], kv[1], false)
	}
	v, err := n.LeafDelete(10, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, []int64{10, 10, 20}, n.Keys)
	assert.Equal(t, []int64{1, 3, 1}, n.Values)
}

func TestLeafDeleteNotFound(t *testing.T) {
	n := newLeaf(Unique)
	_, _ = n.LeafPut(1, 100, false)
	_, err := n.LeafDelete(2, 0)
	require.Error(t, err)
}

func TestBinarySearchFindsExactAndInsertionPoint(t *testing.T) {
	n := newLeaf(Unique)
	for _, k := range []int64{1, 3, 5, 7, 9} {
		_, _ = n.LeafPut(k, k, false)
	}
	assert.Equal(t, 2, n.BinarySearch(5, 0))
	pos := n.BinarySearch(6, 0)
	assert.True(t, pos < 0)
	assert.Equal(t, 3, insertionPoint(pos))
}

func TestInnerPutInstallsSeparatorAndChild(t *testing.T) {
	n := newInner(Unique)
	n.ChildIDs = []uint64{1}
	n.ChildSizes = []int{0}
	err := n.InnerPut(10, 0, 2)
	require.NoError(t, err)
	err = n.InnerPut(20, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, n.Keys)
	assert.Equal(t, []uint64{1, 2, 3}, n.ChildIDs)
}

func TestFindKeyValuePosSeparatorConvention(t *testing.T) {
	// Separator k[i] is the smallest entry of child i+1:
	// an exact match at i must descend into child i+1, not i.
	n := newInner(Unique)
	n.ChildIDs = []uint64{1}
	n.ChildSizes = []int{0}
	_ = n.InnerPut(10, 0, 2)
	_ = n.InnerPut(20, 0, 3)

	assert.Equal(t, 0, n.FindKeyValuePos(5, 0))
	assert.Equal(t, 1, n.FindKeyValuePos(10, 0))
	assert.Equal(t, 1, n.FindKeyValuePos(15, 0))
	assert.Equal(t, 2, n.FindKeyValuePos(20, 0))
	assert.Equal(t, 2, n.FindKeyValuePos(25, 0))
}

func TestRecomputePrefixTracksMinMax(t *testing.T) {
	n := newLeaf(Unique)
	for _, k := range []int64{100, 101, 102, 103} {
		_, _ = n.LeafPut(k, k, false)
	}
	require.Greater(t, n.Prefix.Len, 0)
}

func TestIsUnderfullAndOverflows(t *testing.T) {
	n := newLeaf(Unique)
	assert.False(t, n.IsRoot)
	assert.True(t, n.IsUnderfull()) // empty non-root leaf is underfull

	for i := int64(0); i < 20; i++ {
		_, _ = n.LeafPut(i, i, false)
		if n.Overflows() {
			break
		}
	}
	assert.True(t, n.Overflows())
}

func TestCheckInvariantsDetectsUnsorted(t *testing.T) {
	n := newLeaf(Unique)
	n.Keys = []int64{3, 1, 2}
	n.Values = []int64{3, 1, 2}
	assert.Error(t, n.CheckInvariants())
}
