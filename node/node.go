// Package node implements the B+-tree node model: a BTreeNode holds a
// sorted key array and a parallel value array (leaves) or child-id array
// (inner nodes), in one of two modes chosen once at tree creation.
// PagedBTreeNode adds the page-identity and dirty-tracking the buffer
// manager needs.
package node

import (
	"sort"

	"github.com/zoodb/btreeindex/btreeerr"
	"github.com/zoodb/btreeindex/internal/prefix"
)

// Mode selects the ordering/search convention for a tree. Fixed for the
// lifetime of a tree; never mixed within one tree.
type Mode int

const (
	Unique Mode = iota
	NonUnique
)

// BTreeNode is one node of the tree. Leaf nodes carry
// Values; inner nodes carry ChildIDs (and ChildSizes, a caching hint).
type BTreeNode struct {
	Mode     Mode
	IsLeaf   bool
	IsRoot   bool

	PageSize          int
	PageSizeThreshold int // 0.75 * PageSize
	ValueElementSize  int // byte cost per value, for size accounting

	Keys   []int64
	Values []int64 // leaves, and separator values of non-unique inner nodes

	ChildIDs   []uint64 // inner only, len == len(Keys)+1
	ChildSizes []int    // inner only, cached hint, same len as ChildIDs

	Prefix      prefix.Prefix
	CurrentSize int
}

// New creates an empty node of the given kind for a tree in the given mode.
func New(mode Mode, isLeaf bool, pageSize, valueElementSize int) *BTreeNode {
	n := &BTreeNode{
		Mode:              mode,
		IsLeaf:            isLeaf,
		PageSize:          pageSize,
		PageSizeThreshold: pageSize * 3 / 4,
		ValueElementSize:  valueElementSize,
	}
	if !isLeaf {
		n.ChildIDs = []uint64{0}
		n.ChildSizes = []int{0}
	}
	n.recompute()
	return n
}

// NumKeys is the count of live entries.
func (n *BTreeNode) NumKeys() int { return len(n.Keys) }

// lessThanEntry reports whether the search key (key,value), value ignored in
// Unique mode, orders strictly before entry i.
func (n *BTreeNode) lessThanEntry(key, value int64, i int) bool {
	if n.Keys[i] != key {
		return key < n.Keys[i]
	}
	if n.Mode == Unique {
		return false // equal keys compare equal in unique mode
	}
	return value < n.Values[i]
}

func (n *BTreeNode) equalEntry(key, value int64, i int) bool {
	if n.Keys[i] != key {
		return false
	}
	if n.Mode == Unique {
		return true
	}
	return n.Values[i] == value
}

// BinarySearch returns i >= 0 on an exact match for (key,value), value
// ignored in Unique mode, else -(insertionPoint+1).
func (n *BTreeNode) BinarySearch(key, value int64) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.lessThanEntry(key, value, mid) {
			hi = mid
		} else if n.equalEntry(key, value, mid) {
			return mid
		} else {
			lo = mid + 1
		}
	}
	return -(lo + 1)
}

// insertionPoint converts a BinarySearch result into a non-negative slot,
// whether or not an exact match existed.
func insertionPoint(pos int) int {
	if pos >= 0 {
		return pos
	}
	return -(pos + 1)
}

// FindKeyValuePos converts a search result over THIS inner node's own
// separators into the child slot to descend into: separator k[i] is a copy
// of the smallest entry of child i+1, so an exact match at i means the real entry
// lives in child i+1, not child i; a miss with insertion point i means
// descend into child i.
func (n *BTreeNode) FindKeyValuePos(key, value int64) int {
	pos := n.BinarySearch(key, value)
	if pos >= 0 {
		return pos + 1
	}
	return insertionPoint(pos)
}

func (n *BTreeNode) recomputePrefix() {
	if len(n.Keys) == 0 {
		n.Prefix = prefix.Prefix{}
		return
	}
	min := prefix.ToUnsigned(n.Keys[0])
	max := prefix.ToUnsigned(n.Keys[len(n.Keys)-1])
	n.Prefix = prefix.Compute(min, max)
}

// recompute refreshes Prefix and CurrentSize; must run after every mutator.
func (n *BTreeNode) recompute() {
	n.recomputePrefix()
	n.CurrentSize = n.computeSize()
}

// RecomputeSize refreshes CurrentSize from the node's current Keys/Values
// (or ChildIDs) and Prefix, without recomputing Prefix itself. Used by
// internal/page.Deserialize once it has set Keys/Prefix directly from the
// decoded page image.
func (n *BTreeNode) RecomputeSize() int {
	n.CurrentSize = n.computeSize()
	return n.CurrentSize
}

// Recompute refreshes both Prefix and CurrentSize. Callers outside this
// package (btree's split/merge/borrow code) must call this after directly
// slicing a node's Keys/Values/ChildIDs, so the cached prefix always
// reflects the live key range.
func (n *BTreeNode) Recompute() { n.recompute() }

// sorted reports whether the entries are in the mode's order; it backs
// CheckInvariants and the invariant-checking tests.
func (n *BTreeNode) sorted() bool {
	if n.Mode == Unique {
		return sort.SliceIsSorted(n.Keys, func(i, j int) bool { return n.Keys[i] < n.Keys[j] })
	}
	return sort.SliceIsSorted(n.Keys, func(i, j int) bool {
		if n.Keys[i] != n.Keys[j] {
			return n.Keys[i] < n.Keys[j]
		}
		return n.Values[i] < n.Values[j]
	})
}

// CheckInvariants validates entry sortedness for tests.
func (n *BTreeNode) CheckInvariants() error {
	if !n.sorted() {
		return btreeerr.InvariantViolationf("node: keys not sorted")
	}
	return nil
}
