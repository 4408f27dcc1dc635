package node

import "github.com/zoodb/btreeindex/internal/prefix"

// StorageHeaderSize is the fixed per-page header cost shared by every node
// kind: kind byte + isRoot byte + numKeys(2) + prefixLen(1) + prefixValue(8).
const StorageHeaderSize = 1 + 1 + 2 + 1 + 8

// ChildIDSize is the on-disk width of one child page id.
const ChildIDSize = 4

// keyArraySize is the packed-suffix-bits footprint of the key array,
// excluding StorageHeaderSize (which already carries prefixLen/prefixValue).
func (n *BTreeNode) keyArraySize() int {
	return prefix.SuffixByteLen(len(n.Keys), n.Prefix)
}

// nonKeyEntriesSize is valueElementSize*numKeys in leaves, plus, in inner
// nodes, ChildIDSize*(numKeys+1) for child ids and, only in non-unique
// mode (where a separator is the pair (key,value) rather than key alone),
// a further valueElementSize*numKeys for the separator values.
func (n *BTreeNode) nonKeyEntriesSize() int {
	size := n.valuesArraySize()
	if !n.IsLeaf {
		size += ChildIDSize * (len(n.Keys) + 1)
	}
	return size
}

// valuesArraySize is the footprint of the Values array: always present in
// leaves, present in inner nodes only when separators carry a value
// (non-unique mode).
func (n *BTreeNode) valuesArraySize() int {
	if n.IsLeaf || n.Mode == NonUnique {
		return n.ValueElementSize * len(n.Keys)
	}
	return 0
}

// computeSize is the node's byte footprint when serialized.
func (n *BTreeNode) computeSize() int {
	return StorageHeaderSize + n.keyArraySize() + n.nonKeyEntriesSize()
}

// IsUnderfull reports whether a non-root node is below the underfull
// threshold (root: empty).
func (n *BTreeNode) IsUnderfull() bool {
	if n.IsRoot {
		return len(n.Keys) == 0
	}
	return n.CurrentSize < n.PageSizeThreshold
}

// HasExtraKeys reports whether this node may donate an entry to a sibling:
// it holds more than two keys and its size is above the underfull
// threshold. The size it would have after donating is not checked.
func (n *BTreeNode) HasExtraKeys() bool {
	return len(n.Keys) > 2 && n.CurrentSize > n.PageSizeThreshold
}

// Overflows reports whether the node exceeds its page budget.
func (n *BTreeNode) Overflows() bool {
	return n.CurrentSize > n.PageSize
}

// WouldOverflowAfterInsert predicts whether inserting one more entry (and,
// for inner nodes, one more child pointer) would overflow the node.
// This drives proactive split.
func (n *BTreeNode) WouldOverflowAfterInsert() bool {
	projectedKeys := len(n.Keys) + 1
	// Worst case: a new key outside [min,max] shrinks the shared prefix to
	// 0, so assume no prefix sharing for the projection.
	worstPrefix := prefix.Prefix{}
	size := StorageHeaderSize + prefix.SuffixByteLen(projectedKeys, worstPrefix)
	if n.IsLeaf || n.Mode == NonUnique {
		size += n.ValueElementSize * projectedKeys
	}
	if !n.IsLeaf {
		size += ChildIDSize * (projectedKeys + 1)
	}
	return size > n.PageSize
}

// FitsIntoOneNodeWith reports whether n and other's entries, plus for inner
// nodes the parent separator a merge pulls down, would together fit within
// one page (used to decide merge-vs-borrow on delete).
func (n *BTreeNode) FitsIntoOneNodeWith(other *BTreeNode) bool {
	totalKeys := len(n.Keys) + len(other.Keys)
	keys := make([]int64, 0, totalKeys)
	keys = append(keys, n.Keys...)
	keys = append(keys, other.Keys...)
	var p prefix.Prefix
	if totalKeys > 0 {
		min := prefix.ToUnsigned(keys[0])
		max := prefix.ToUnsigned(keys[0])
		for _, k := range keys {
			u := prefix.ToUnsigned(k)
			if u < min {
				min = u
			}
			if u > max {
				max = u
			}
		}
		p = prefix.Compute(min, max)
	}
	if !n.IsLeaf {
		totalKeys++ // the separator sits between the two key ranges
	}
	size := StorageHeaderSize + prefix.SuffixByteLen(totalKeys, p)
	if n.IsLeaf || n.Mode == NonUnique {
		size += n.ValueElementSize * totalKeys
	}
	if !n.IsLeaf {
		size += ChildIDSize * (totalKeys + 1)
	}
	return size <= n.PageSize
}
