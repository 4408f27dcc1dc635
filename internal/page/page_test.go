package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoodb/btreeindex/node"
)

func TestSerializeDeserializeRoundTripLeafUnique(t *testing.T) {
	n := node.New(node.Unique, true, 256, 8)
	for _, k := range []int64{1, 2, 3, 5, 8} {
		_, err := n.LeafPut(k, k*10, false)
		require.NoError(t, err)
	}

	buf := Serialize(n, 256)
	assert.Len(t, buf, 256)

	got, err := Deserialize(buf, node.Unique, 256, 8)
	require.NoError(t, err)
	assert.Equal(t, n.Keys, got.Keys)
	assert.Equal(t, n.Values, got.Values)
	assert.True(t, got.IsLeaf)

	buf2 := Serialize(got, 256)
	assert.Equal(t, []byte(buf), []byte(buf2))
}

func TestSerializeDeserializeRoundTripInnerNonUnique(t *testing.T) {
	n := node.New(node.NonUnique, false, 256, 8)
	n.ChildIDs = []uint64{10}
	n.ChildSizes = []int{0}
	require.NoError(t, n.InnerPut(5, 1, 20))
	require.NoError(t, n.InnerPut(5, 2, 30))

	buf := Serialize(n, 256)
	got, err := Deserialize(buf, node.NonUnique, 256, 8)
	require.NoError(t, err)
	assert.Equal(t, n.Keys, got.Keys)
	assert.Equal(t, n.Values, got.Values)
	assert.Equal(t, n.ChildIDs, got.ChildIDs)
}

func TestDeserializeRejectsModeMismatch(t *testing.T) {
	n := node.New(node.Unique, true, 256, 8)
	buf := Serialize(n, 256)
	_, err := Deserialize(buf, node.NonUnique, 256, 8)
	assert.Error(t, err)
}

func TestDeserializeRejectsWrongPageSize(t *testing.T) {
	n := node.New(node.Unique, true, 256, 8)
	buf := Serialize(n, 256)
	_, err := Deserialize(buf[:100], node.Unique, 256, 8)
	assert.Error(t, err)
}
