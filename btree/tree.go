// Package btree implements the B+-tree algorithms over node.BTreeNode
// pages addressed through a buffer.Manager: proactive-split insertion,
// borrow-then-merge deletion, search, and iteration support
// (CreateTree/Insert/Remove/Contains/Search/modification count).
package btree

import (
	"github.com/zoodb/btreeindex/btreeerr"
	"github.com/zoodb/btreeindex/buffer"
	"github.com/zoodb/btreeindex/internal/prefix"
	"github.com/zoodb/btreeindex/node"
	"github.com/zoodb/btreeindex/storage"
)

// Tree is a single B+-tree instance: a root page id plus the buffer manager
// that owns every node reachable from it.
type Tree struct {
	bm               *buffer.Manager
	mode             node.Mode
	pageSize         int
	valueElementSize int

	rootID uint64

	// modCount increments once per external mutating call (Insert that
	// actually changed something, Remove that found its key), never per
	// internal node split/merge/borrow.
	modCount uint64
}

// CreateTree allocates a fresh, empty tree, a single leaf root page, on
// bufferManager.
func CreateTree(pageSize int, isUnique bool, valueElementSize int, bufferManager *buffer.Manager) (*Tree, error) {
	mode := node.Unique
	if !isUnique {
		mode = node.NonUnique
	}
	root := node.New(mode, true, pageSize, valueElementSize)
	root.IsRoot = true
	rootID, err := bufferManager.Save(root)
	if err != nil {
		return nil, err
	}
	return &Tree{
		bm:               bufferManager,
		mode:             mode,
		pageSize:         pageSize,
		valueElementSize: valueElementSize,
		rootID:           rootID,
	}, nil
}

// RootPageID returns the current root page id: after a commit, the one
// value the enclosing storage must persist to locate the tree.
func (t *Tree) RootPageID() uint64 { return t.rootID }

// ModificationCount is the monotonic counter iterators stamp and validate
// against.
func (t *Tree) ModificationCount() uint64 { return t.modCount }

// Mode reports whether the tree enforces unique keys.
func (t *Tree) Mode() node.Mode { return t.mode }

// BufferManager exposes the underlying manager; iterators need it to
// re-read nodes by id and to validate against its transaction id.
func (t *Tree) BufferManager() *buffer.Manager { return t.bm }

// ─── Insert ─────────────────────────────────────────────────────────────

// Insert installs (key, value). If onlyIfNotSet and an equal entry
// already exists, the tree is left unchanged and false is returned.
// Splits any node on the descent path BEFORE descending into it,
// proactively, so the insert itself never has to split on the way back up.
func (t *Tree) Insert(key, value int64, onlyIfNotSet bool) (bool, error) {
	if onlyIfNotSet {
		// Look before splitting, so a duplicate leaves every node untouched.
		found, err := t.Contains(key, value)
		if err != nil {
			return false, err
		}
		if found {
			return false, nil
		}
	}
	cur, err := t.bm.Read(t.rootID)
	if err != nil {
		return false, err
	}
	if cur.WouldOverflowAfterInsert() {
		if err := t.splitRoot(cur); err != nil {
			return false, err
		}
		cur, err = t.bm.Read(t.rootID)
		if err != nil {
			return false, err
		}
	}

	for {
		if cur.IsLeaf {
			ok, err := cur.LeafPut(key, value, onlyIfNotSet)
			if err != nil {
				return false, err
			}
			if ok {
				cur.MarkChanged()
				t.modCount++
			}
			return ok, nil
		}

		idx := cur.FindKeyValuePos(key, value)
		child, err := t.bm.Read(cur.ChildIDs[idx])
		if err != nil {
			return false, err
		}
		if child.WouldOverflowAfterInsert() {
			if err := t.splitChild(cur, child); err != nil {
				return false, err
			}
			// The promoted separator may now fall on either side of where
			// idx pointed; re-derive the child slot from scratch.
			idx = cur.FindKeyValuePos(key, value)
			child, err = t.bm.Read(cur.ChildIDs[idx])
			if err != nil {
				return false, err
			}
		}
		cur = child
	}
}

// splitNode carries out the structural half of a split: it halves n in
// place (n keeps the left half) and returns the newly built right sibling
// plus the (key,value) to promote into the parent. It does not touch the
// parent or allocate a page id for right; callers do that, since the root
// case and the interior case install the promoted entry differently.
//
// Leaves replicate the promoted key into the right sibling (B+-tree
// convention: the separator is a copy, the authoritative entry stays in the
// leaf); inner nodes extract it (B-tree convention: the entry moves up and
// out).
func splitNode(n *node.BTreeNode) (right *node.BTreeNode, promotedKey, promotedValue int64, err error) {
	headerBytes := node.StorageHeaderSize
	weightPerKey, weightPerChild := 0, 0
	if n.IsLeaf || n.Mode == node.NonUnique {
		weightPerKey = n.ValueElementSize
	}
	if !n.IsLeaf {
		weightPerChild = node.ChildIDSize
	}
	k := prefix.SplitIndex(n.Keys, len(n.Keys), headerBytes, weightPerKey, weightPerChild, n.PageSize)
	if k <= 0 {
		return nil, 0, 0, btreeerr.InvariantViolationf("btree: node has no valid split position")
	}

	right = node.New(n.Mode, n.IsLeaf, n.PageSize, n.ValueElementSize)
	if n.IsLeaf {
		promotedKey, promotedValue = n.Keys[k], n.Values[k]
		right.Keys = append([]int64(nil), n.Keys[k:]...)
		right.Values = append([]int64(nil), n.Values[k:]...)
		n.Keys = n.Keys[:k]
		n.Values = n.Values[:k]
	} else {
		promotedKey = n.Keys[k]
		if n.Mode == node.NonUnique {
			promotedValue = n.Values[k]
		}
		right.Keys = append([]int64(nil), n.Keys[k+1:]...)
		right.ChildIDs = append([]uint64(nil), n.ChildIDs[k+1:]...)
		right.ChildSizes = make([]int, len(right.ChildIDs))
		if n.Mode == node.NonUnique {
			right.Values = append([]int64(nil), n.Values[k+1:]...)
			n.Values = n.Values[:k]
		}
		n.Keys = n.Keys[:k]
		n.ChildIDs = n.ChildIDs[:k+1]
		n.ChildSizes = n.ChildSizes[:k+1]
	}
	n.Recompute()
	right.Recompute()
	return right, promotedKey, promotedValue, nil
}

func (t *Tree) splitChild(parent, child *node.PagedBTreeNode) error {
	right, midKey, midValue, err := splitNode(child.BTreeNode)
	if err != nil {
		return err
	}
	rightID, err := t.bm.Save(right)
	if err != nil {
		return err
	}
	child.MarkChanged()

	if err := parent.InnerPut(midKey, midValue, rightID); err != nil {
		return err
	}
	parent.MarkChanged()
	return nil
}

func (t *Tree) splitRoot(root *node.PagedBTreeNode) error {
	right, midKey, midValue, err := splitNode(root.BTreeNode)
	if err != nil {
		return err
	}
	rightID, err := t.bm.Save(right)
	if err != nil {
		return err
	}
	oldRootID := root.PageID
	root.IsRoot = false
	root.MarkChanged()

	newRoot := node.New(root.Mode, false, root.PageSize, root.ValueElementSize)
	newRoot.IsRoot = true
	newRoot.Keys = []int64{midKey}
	if root.Mode == node.NonUnique {
		newRoot.Values = []int64{midValue}
	}
	newRoot.ChildIDs = []uint64{oldRootID, rightID}
	newRoot.ChildSizes = []int{0, 0}
	newRoot.Recompute()

	newRootID, err := t.bm.Save(newRoot)
	if err != nil {
		return err
	}
	t.rootID = newRootID
	return nil
}

// InsertNew installs (key, value) and fails with DuplicateKey if an equal
// entry already exists. This is the error-surfacing form of Insert with
// onlyIfNotSet.
func (t *Tree) InsertNew(key, value int64) error {
	ok, err := t.Insert(key, value, true)
	if err != nil {
		return err
	}
	if !ok {
		return btreeerr.DuplicateKeyf("btree: key %d already present", key)
	}
	return nil
}

// ─── Remove ─────────────────────────────────────────────────────────────

// Remove deletes (key,value), value ignored in Unique mode, returning the
// removed value, or NotFound. Descent never rebalances eagerly;
// rebalancing happens only on the way back up, once a child is known to
// be underfull.
func (t *Tree) Remove(key, value int64) (int64, error) {
	root, err := t.bm.Read(t.rootID)
	if err != nil {
		return 0, err
	}
	val, err := t.removeRec(root, key, value)
	if err != nil {
		return 0, err
	}
	t.modCount++

	root, err = t.bm.Read(t.rootID)
	if err != nil {
		return 0, err
	}
	if !root.IsLeaf && len(root.Keys) == 0 && len(root.ChildIDs) == 1 {
		newRootID := root.ChildIDs[0]
		newRoot, err := t.bm.Read(newRootID)
		if err != nil {
			return 0, err
		}
		newRoot.IsRoot = true
		newRoot.MarkChanged()
		t.bm.Delete(root.PageID)
		t.rootID = newRootID
	}
	return val, nil
}

func (t *Tree) removeRec(n *node.PagedBTreeNode, key, value int64) (int64, error) {
	if n.IsLeaf {
		val, err := n.LeafDelete(key, value)
		if err != nil {
			return 0, err
		}
		n.MarkChanged()
		return val, nil
	}

	idx := n.FindKeyValuePos(key, value)
	child, err := t.bm.Read(n.ChildIDs[idx])
	if err != nil {
		return 0, err
	}

	val, err := t.removeRec(child, key, value)
	if err != nil {
		return 0, err
	}

	child, err = t.bm.Read(n.ChildIDs[idx])
	if err != nil {
		return 0, err
	}
	if child.IsUnderfull() {
		if err := t.rebalance(n, idx); err != nil {
			return 0, err
		}
	}
	return val, nil
}

// rebalance restores n.ChildIDs[idx]'s non-underfull invariant: borrow from
// the left sibling if it has spare entries, else the right; otherwise merge
// with whichever sibling fits, preferring the left.
func (t *Tree) rebalance(parent *node.PagedBTreeNode, idx int) error {
	child, err := t.bm.Read(parent.ChildIDs[idx])
	if err != nil {
		return err
	}

	if idx > 0 {
		left, err := t.bm.Read(parent.ChildIDs[idx-1])
		if err != nil {
			return err
		}
		if left.HasExtraKeys() {
			return t.borrowFromLeft(parent, idx-1, left, child)
		}
	}
	if idx < len(parent.ChildIDs)-1 {
		right, err := t.bm.Read(parent.ChildIDs[idx+1])
		if err != nil {
			return err
		}
		if right.HasExtraKeys() {
			return t.borrowFromRight(parent, idx, child, right)
		}
	}
	if idx > 0 {
		left, err := t.bm.Read(parent.ChildIDs[idx-1])
		if err != nil {
			return err
		}
		if left.FitsIntoOneNodeWith(child.BTreeNode) {
			return t.mergeSiblings(parent, idx-1, left, child)
		}
	}
	if idx < len(parent.ChildIDs)-1 {
		right, err := t.bm.Read(parent.ChildIDs[idx+1])
		if err != nil {
			return err
		}
		if child.FitsIntoOneNodeWith(right.BTreeNode) {
			return t.mergeSiblings(parent, idx, child, right)
		}
	}
	// Neither sibling can donate (sitting exactly at the threshold, or
	// holding too few keys) and no merge fits in one page. The child stays
	// underfull until a later mutation touches this subtree.
	return nil
}

// borrowFromLeft rotates one entry from left, through the separator at
// parent.Keys[sepIdx], into child (child = parent.ChildIDs[sepIdx+1]).
func (t *Tree) borrowFromLeft(parent *node.PagedBTreeNode, sepIdx int, left, child *node.PagedBTreeNode) error {
	sepKey := parent.Keys[sepIdx]
	var sepValue int64
	if parent.Mode == node.NonUnique {
		sepValue = parent.Values[sepIdx]
	}

	if child.IsLeaf {
		ln := len(left.Keys)
		borrowedKey, borrowedValue := left.Keys[ln-1], left.Values[ln-1]
		left.Keys = left.Keys[:ln-1]
		left.Values = left.Values[:ln-1]
		left.Recompute()

		child.Keys = append([]int64{borrowedKey}, child.Keys...)
		child.Values = append([]int64{borrowedValue}, child.Values...)
		child.Recompute()

		parent.Keys[sepIdx] = child.Keys[0]
		if parent.Mode == node.NonUnique {
			parent.Values[sepIdx] = child.Values[0]
		}
	} else {
		ln := len(left.Keys)
		borrowedKey := left.Keys[ln-1]
		var borrowedValue int64
		if left.Mode == node.NonUnique {
			borrowedValue = left.Values[ln-1]
		}
		borrowedChild := left.ChildIDs[ln]

		left.Keys = left.Keys[:ln-1]
		if left.Mode == node.NonUnique {
			left.Values = left.Values[:ln-1]
		}
		left.ChildIDs = left.ChildIDs[:ln]
		left.ChildSizes = left.ChildSizes[:ln]
		left.Recompute()

		child.Keys = append([]int64{sepKey}, child.Keys...)
		if child.Mode == node.NonUnique {
			child.Values = append([]int64{sepValue}, child.Values...)
		}
		child.ChildIDs = append([]uint64{borrowedChild}, child.ChildIDs...)
		child.ChildSizes = append([]int{0}, child.ChildSizes...)
		child.Recompute()

		parent.Keys[sepIdx] = borrowedKey
		if parent.Mode == node.NonUnique {
			parent.Values[sepIdx] = borrowedValue
		}
	}

	left.MarkChanged()
	child.MarkChanged()
	parent.MarkChanged()
	return nil
}

// borrowFromRight rotates one entry from right, through the separator at
// parent.Keys[sepIdx], into child (child = parent.ChildIDs[sepIdx]).
func (t *Tree) borrowFromRight(parent *node.PagedBTreeNode, sepIdx int, child, right *node.PagedBTreeNode) error {
	sepKey := parent.Keys[sepIdx]
	var sepValue int64
	if parent.Mode == node.NonUnique {
		sepValue = parent.Values[sepIdx]
	}

	if child.IsLeaf {
		borrowedKey, borrowedValue := right.Keys[0], right.Values[0]
		right.Keys = right.Keys[1:]
		right.Values = right.Values[1:]
		right.Recompute()

		child.Keys = append(child.Keys, borrowedKey)
		child.Values = append(child.Values, borrowedValue)
		child.Recompute()

		parent.Keys[sepIdx] = right.Keys[0]
		if parent.Mode == node.NonUnique {
			parent.Values[sepIdx] = right.Values[0]
		}
	} else {
		borrowedKey := right.Keys[0]
		var borrowedValue int64
		if right.Mode == node.NonUnique {
			borrowedValue = right.Values[0]
		}
		borrowedChild := right.ChildIDs[0]

		right.Keys = right.Keys[1:]
		if right.Mode == node.NonUnique {
			right.Values = right.Values[1:]
		}
		right.ChildIDs = right.ChildIDs[1:]
		right.ChildSizes = right.ChildSizes[1:]
		right.Recompute()

		child.Keys = append(child.Keys, sepKey)
		if child.Mode == node.NonUnique {
			child.Values = append(child.Values, sepValue)
		}
		child.ChildIDs = append(child.ChildIDs, borrowedChild)
		child.ChildSizes = append(child.ChildSizes, 0)
		child.Recompute()

		parent.Keys[sepIdx] = borrowedKey
		if parent.Mode == node.NonUnique {
			parent.Values[sepIdx] = borrowedValue
		}
	}

	right.MarkChanged()
	child.MarkChanged()
	parent.MarkChanged()
	return nil
}

// mergeSiblings folds right into left, dropping the separator at
// parent.Keys[sepIdx] and the now-dangling child reference it headed
// (left = parent.ChildIDs[sepIdx], right = parent.ChildIDs[sepIdx+1]).
func (t *Tree) mergeSiblings(parent *node.PagedBTreeNode, sepIdx int, left, right *node.PagedBTreeNode) error {
	if left.IsLeaf {
		left.Keys = append(left.Keys, right.Keys...)
		left.Values = append(left.Values, right.Values...)
	} else {
		left.Keys = append(left.Keys, parent.Keys[sepIdx])
		if left.Mode == node.NonUnique {
			left.Values = append(left.Values, parent.Values[sepIdx])
		}
		left.Keys = append(left.Keys, right.Keys...)
		if left.Mode == node.NonUnique {
			left.Values = append(left.Values, right.Values...)
		}
		left.ChildIDs = append(left.ChildIDs, right.ChildIDs...)
		left.ChildSizes = append(left.ChildSizes, right.ChildSizes...)
	}
	left.Recompute()
	left.MarkChanged()

	t.bm.Delete(right.PageID)
	parent.RemoveSeparatorAt(sepIdx)
	parent.MarkChanged()
	return nil
}

// ─── Search ─────────────────────────────────────────────────────────────

// Contains reports whether (key,value), value ignored in Unique mode, is
// present.
func (t *Tree) Contains(key, value int64) (bool, error) {
	cur, err := t.descendToLeaf(key, value)
	if err != nil {
		return false, err
	}
	return cur.FindKeyValuePosExact(key, value) >= 0, nil
}

// Search looks up key in a Unique-mode tree.
func (t *Tree) Search(key int64) (int64, error) {
	if t.mode != node.Unique {
		return 0, btreeerr.InvariantViolationf("btree: Search requires a unique-mode tree")
	}
	cur, err := t.descendToLeaf(key, 0)
	if err != nil {
		return 0, err
	}
	pos := cur.FindKeyValuePosExact(key, 0)
	if pos < 0 {
		return 0, btreeerr.NotFoundf("btree: key %d not found", key)
	}
	return cur.Values[pos], nil
}

func (t *Tree) descendToLeaf(key, value int64) (*node.PagedBTreeNode, error) {
	cur, err := t.bm.Read(t.rootID)
	if err != nil {
		return nil, err
	}
	for !cur.IsLeaf {
		idx := cur.FindKeyValuePos(key, value)
		cur, err = t.bm.Read(cur.ChildIDs[idx])
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// ─── Transaction boundary ───────────────────────────────────────────────

// Commit flushes every dirty node bottom-up and advances the underlying
// buffer manager's transaction id, invalidating outstanding iterators.
func (t *Tree) Commit() error {
	newRoot, err := t.bm.Commit(t.rootID)
	if err != nil {
		return err
	}
	t.rootID = newRoot
	return nil
}

// Rollback discards uncommitted node state and rewinds the tree to its
// last committed root. Before the first commit there is no committed state
// to rewind to; the tree must then be discarded along with its manager.
func (t *Tree) Rollback() {
	if id := t.bm.Rollback(); id != storage.InvalidPageID {
		t.rootID = id
	}
}
