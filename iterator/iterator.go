// Package iterator implements leaf entry iterators: a snapshot-scoped
// cursor over a tree's sorted entries, positioned by descending through a
// stack of (ancestorPageId, childIndex) pairs rather than following
// sibling links (the node model carries none), and invalidated the moment
// the buffer manager's transaction id or the tree's modification count
// moves out from under it. Three variants (ascending, descending, and a
// non-unique ranged form with an exact (key,value) lower bound) share
// one positioning/stepping core.
package iterator

import (
	"math"

	"github.com/zoodb/btreeindex/btree"
	"github.com/zoodb/btreeindex/btreeerr"
	"github.com/zoodb/btreeindex/buffer"
)

// ancestorFrame records, for one inner node on the path from the root to
// the current leaf, which child index was taken to get here, the
// replacement for a parent back-pointer.
type ancestorFrame struct {
	pageID   uint64
	childIdx int
}

// LeafEntryIterator walks a tree's leaf entries in key order (or reverse),
// optionally bounded, and optionally anchored at an exact non-unique
// (key,value) lower bound. Use NewAscending/NewDescending/NewRanged to
// construct one.
type LeafEntryIterator struct {
	tree *btree.Tree
	bm   *buffer.Manager

	descending bool

	hasLowBound bool
	lowKey      int64
	hasLowValue bool
	lowValue    int64

	hasHighBound bool
	highKey      int64

	// txID and modCount are stamped at construction and rechecked on every
	// step.
	txID     uint64
	modCount uint64

	stack  []ancestorFrame
	leafID uint64
	pos    int

	curKey, curValue int64

	closed    bool
	exhausted bool
}

// NewAscending returns an iterator over entries with startKey <= key <=
// endKey (either bound may be nil for unbounded), increasing.
func NewAscending(tree *btree.Tree, startKey, endKey *int64) (*LeafEntryIterator, error) {
	return newIterator(tree, false, startKey, 0, false, endKey)
}

// NewDescending returns an iterator over entries with startKey <= key <=
// endKey (either bound may be nil for unbounded), decreasing.
func NewDescending(tree *btree.Tree, startKey, endKey *int64) (*LeafEntryIterator, error) {
	return newIterator(tree, true, startKey, 0, false, endKey)
}

// NewRanged returns an ascending iterator over a non-unique tree anchored
// at the exact (startKey, startValue) lower bound (inclusive), up to
// optional endKey.
func NewRanged(tree *btree.Tree, startKey, startValue int64, endKey *int64) (*LeafEntryIterator, error) {
	k := startKey
	return newIterator(tree, false, &k, startValue, true, endKey)
}

func newIterator(tree *btree.Tree, descending bool, lowKey *int64, lowValue int64, hasLowValue bool, highKey *int64) (*LeafEntryIterator, error) {
	it := &LeafEntryIterator{
		tree:       tree,
		bm:         tree.BufferManager(),
		descending: descending,
		txID:       tree.BufferManager().TransactionID(),
		modCount:   tree.ModificationCount(),
	}
	if lowKey != nil {
		it.hasLowBound = true
		it.lowKey = *lowKey
		it.hasLowValue = hasLowValue
		it.lowValue = lowValue
	}
	if highKey != nil {
		it.hasHighBound = true
		it.highKey = *highKey
	}

	var key, value int64
	var hasBound bool
	switch {
	case descending && it.hasHighBound:
		// Position at the rightmost entry <= highKey: searching with the
		// maximal sentinel value lands past every entry that shares
		// highKey, so the miss-insertion-point minus one is exactly that
		// entry (see descendTo).
		key, value, hasBound = it.highKey, math.MaxInt64, true
	case !descending && it.hasLowBound:
		value = math.MinInt64
		if hasLowValue {
			value = lowValue
		}
		key, hasBound = it.lowKey, true
	}

	if err := it.descendTo(tree.RootPageID(), hasBound, key, value); err != nil {
		return nil, err
	}
	return it, nil
}

// descendTo walks from pageID to a leaf, pushing an ancestorFrame at every
// inner node, and leaves the iterator positioned on the first entry the
// requested bound (or direction, if unbounded) calls for.
func (it *LeafEntryIterator) descendTo(pageID uint64, hasBound bool, key, value int64) error {
	cur, err := it.bm.Read(pageID)
	if err != nil {
		return err
	}
	for !cur.IsLeaf {
		var idx int
		switch {
		case hasBound:
			idx = cur.FindKeyValuePos(key, value)
		case it.descending:
			idx = len(cur.ChildIDs) - 1
		default:
			idx = 0
		}
		it.stack = append(it.stack, ancestorFrame{pageID: cur.PageID, childIdx: idx})
		cur, err = it.bm.Read(cur.ChildIDs[idx])
		if err != nil {
			return err
		}
	}
	it.leafID = cur.PageID
	switch {
	case hasBound:
		pos := cur.BinarySearch(key, value)
		if pos < 0 {
			pos = -(pos + 1)
			if it.descending {
				pos--
			}
		}
		it.pos = pos
	case it.descending:
		it.pos = len(cur.Keys) - 1
	default:
		it.pos = 0
	}
	return nil
}

// Next advances to the next entry and reports whether one exists. On
// IteratorInvalidatedByCommit or ConcurrentModification it returns (false,
// err) and the iterator is permanently exhausted; callers must discard it.
func (it *LeafEntryIterator) Next() (bool, error) {
	if it.closed || it.exhausted {
		return false, nil
	}
	if err := it.validate(); err != nil {
		it.exhausted = true
		return false, err
	}

	for {
		leaf, err := it.bm.Read(it.leafID)
		if err != nil {
			it.exhausted = true
			return false, err
		}
		if it.pos < 0 || it.pos >= len(leaf.Keys) {
			ok, err := it.advanceToNextLeaf()
			if err != nil {
				it.exhausted = true
				return false, err
			}
			if !ok {
				it.exhausted = true
				return false, nil
			}
			continue
		}

		key, value := leaf.Keys[it.pos], leaf.Values[it.pos]
		if it.descending {
			if it.hasLowBound && key < it.lowKey {
				it.exhausted = true
				return false, nil
			}
		} else if it.hasHighBound && key > it.highKey {
			it.exhausted = true
			return false, nil
		}

		it.curKey, it.curValue = key, value
		if it.descending {
			it.pos--
		} else {
			it.pos++
		}
		return true, nil
	}
}

// advanceToNextLeaf pops ancestor frames until it finds one with an
// unvisited sibling in the iteration direction, then descends to that
// sibling's extreme leaf.
func (it *LeafEntryIterator) advanceToNextLeaf() (bool, error) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		parent, err := it.bm.Read(top.pageID)
		if err != nil {
			return false, err
		}

		var nextIdx int
		if it.descending {
			nextIdx = top.childIdx - 1
		} else {
			nextIdx = top.childIdx + 1
		}
		if nextIdx < 0 || nextIdx >= len(parent.ChildIDs) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		top.childIdx = nextIdx
		if err := it.descendTo(parent.ChildIDs[nextIdx], false, 0, 0); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (it *LeafEntryIterator) validate() error {
	if it.bm.TransactionID() != it.txID {
		return btreeerr.IteratorInvalidatedByCommitf("iterator: transaction committed or rolled back since this iterator was opened")
	}
	if it.tree.ModificationCount() != it.modCount {
		return btreeerr.ConcurrentModificationf("iterator: tree mutated since this iterator was opened")
	}
	return nil
}

// Key returns the key of the entry most recently returned by Next.
func (it *LeafEntryIterator) Key() int64 { return it.curKey }

// Value returns the value of the entry most recently returned by Next.
func (it *LeafEntryIterator) Value() int64 { return it.curValue }

// Close drops the iterator's leaf reference. Idempotent; there is no
// Remove-through-iterator support.
func (it *LeafEntryIterator) Close() error {
	it.closed = true
	it.exhausted = true
	it.stack = nil
	return nil
}
