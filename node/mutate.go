package node

import "github.com/zoodb/btreeindex/btreeerr"

// LeafPut inserts or overwrites (key, value). If onlyIfNotSet and an
// exact match already exists, returns false without modifying the node.
// The caller must have ensured room via proactive split; Put never splits.
func (n *BTreeNode) LeafPut(key, value int64, onlyIfNotSet bool) (bool, error) {
	if !n.IsLeaf {
		return false, btreeerr.InvariantViolationf("node: LeafPut on inner node")
	}
	if len(n.Keys) == 0 {
		n.Keys = append(n.Keys, key)
		n.Values = append(n.Values, value)
		n.recompute()
		return true, nil
	}

	pos := n.BinarySearch(key, value)
	if pos >= 0 {
		if onlyIfNotSet {
			return false, nil
		}
		n.Values[pos] = value
		n.recompute()
		return true, nil
	}

	at := insertionPoint(pos)
	n.Keys = insertInt64(n.Keys, at, key)
	n.Values = insertInt64(n.Values, at, value)
	n.recompute()
	return true, nil
}

// LeafDelete removes (key,value), value ignored in Unique mode,
// returning the removed value, or NotFound.
func (n *BTreeNode) LeafDelete(key, value int64) (int64, error) {
	if !n.IsLeaf {
		return 0, btreeerr.InvariantViolationf("node: LeafDelete on inner node")
	}
	pos := n.FindKeyValuePosExact(key, value)
	if pos < 0 {
		return 0, btreeerr.NotFoundf("node: key %d not found", key)
	}
	old := n.Values[pos]
	n.Keys = removeAt(n.Keys, pos)
	n.Values = removeAt(n.Values, pos)
	n.recompute()
	return old, nil
}

// FindKeyValuePosExact returns the slot of an exact (key,value) match, or
// -1 if absent.
func (n *BTreeNode) FindKeyValuePosExact(key, value int64) int {
	pos := n.BinarySearch(key, value)
	if pos < 0 {
		return -1
	}
	return pos
}

// InnerPut installs a new separator
// key/value (the promoted entry from a child split, never already
// present) and newRightChild immediately after it.
func (n *BTreeNode) InnerPut(key, value int64, newRightChild uint64) error {
	if n.IsLeaf {
		return btreeerr.InvariantViolationf("node: InnerPut on leaf node")
	}
	pos := insertionPoint(n.BinarySearch(key, value))

	n.Keys = insertInt64(n.Keys, pos, key)
	if n.Mode == NonUnique {
		n.Values = insertInt64(n.Values, pos, value)
	}
	n.ChildIDs = insertUint64(n.ChildIDs, pos+1, newRightChild)
	n.ChildSizes = insertInt(n.ChildSizes, pos+1, 0)
	n.recompute()
	return nil
}

// RemoveSeparatorAt removes the separator at index i and the child
// reference immediately to its right (used when merging inner nodes).
func (n *BTreeNode) RemoveSeparatorAt(i int) {
	n.Keys = removeAt(n.Keys, i)
	if n.Mode == NonUnique && len(n.Values) > i {
		n.Values = removeAt(n.Values, i)
	}
	n.ChildIDs = removeUint64At(n.ChildIDs, i+1)
	n.ChildSizes = removeIntAt(n.ChildSizes, i+1)
	n.recompute()
}

// ─── slice helpers ─────────────────────────────────────────────────────────

func insertInt64(s []int64, at int, v int64) []int64 {
	s = append(s, 0)
	copy(s[at+1:], s[at:len(s)-1])
	s[at] = v
	return s
}

func insertUint64(s []uint64, at int, v uint64) []uint64 {
	s = append(s, 0)
	copy(s[at+1:], s[at:len(s)-1])
	s[at] = v
	return s
}

func insertInt(s []int, at int, v int) []int {
	s = append(s, 0)
	copy(s[at+1:], s[at:len(s)-1])
	s[at] = v
	return s
}

func removeAt(s []int64, at int) []int64 {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}

func removeUint64At(s []uint64, at int) []uint64 {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}

func removeIntAt(s []int, at int) []int {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}
