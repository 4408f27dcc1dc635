// Package buffer implements the buffer manager between the tree and its
// storage channel: it assigns page identifiers, tracks a dirty set, lazily
// materializes pages from a storage.Channel, and writes dirty nodes back
// bottom-up at commit.
package buffer

import (
	"github.com/zoodb/btreeindex/btreeerr"
	"github.com/zoodb/btreeindex/internal/page"
	"github.com/zoodb/btreeindex/node"
	"github.com/zoodb/btreeindex/storage"
)

// Manager owns every
// loaded node; the rest of the system identifies nodes only by page id.
type Manager struct {
	channel          storage.Channel
	mode             node.Mode
	pageSize         int
	valueElementSize int

	cache map[uint64]*node.PagedBTreeNode
	dirty map[uint64]*node.PagedBTreeNode

	txID          uint64
	committedRoot uint64
}

// New creates a buffer manager over channel for a tree in the given mode.
func New(channel storage.Channel, mode node.Mode, valueElementSize int) *Manager {
	return &Manager{
		channel:          channel,
		mode:             mode,
		pageSize:         channel.PageSize(),
		valueElementSize: valueElementSize,
		cache:            make(map[uint64]*node.PagedBTreeNode),
		dirty:            make(map[uint64]*node.PagedBTreeNode),
		txID:             1,
		committedRoot:    storage.InvalidPageID,
	}
}

// TransactionID returns the monotonically increasing id stamped at begin;
// it changes on commit or rollback so outstanding iterators can detect
// both.
func (m *Manager) TransactionID() uint64 { return m.txID }

// Save assigns a page id to a newly created node, records it dirty, and
// returns the id.
func (m *Manager) Save(n *node.BTreeNode) (uint64, error) {
	id, err := m.channel.AllocatePage()
	if err != nil {
		return 0, btreeerr.Corruptionf("buffer: allocate page: %v", err)
	}
	pn := node.NewPaged(n, id, m.onChanged)
	m.cache[id] = pn
	return id, nil
}

// Read returns the in-memory node for pageId, loading it from the storage
// channel on miss. A nonexistent id is fatal corruption for any caller
// holding it.
func (m *Manager) Read(pageID uint64) (*node.PagedBTreeNode, error) {
	if pn, ok := m.cache[pageID]; ok {
		return pn, nil
	}
	raw, err := m.channel.ReadPage(pageID)
	if err != nil {
		return nil, btreeerr.Corruptionf("buffer: read page %d: %v", pageID, err)
	}
	n, err := page.Deserialize(raw, m.mode, m.pageSize, m.valueElementSize)
	if err != nil {
		return nil, err
	}
	pn := &node.PagedBTreeNode{BTreeNode: n, PageID: pageID}
	pn.SetOnChanged(m.onChanged)
	m.cache[pageID] = pn
	return pn, nil
}

// Write serializes node and writes it to the storage channel, allocating a
// fresh physical page id (copy-on-write) and clearing dirty. It is also
// the primitive Commit uses for each dirty node.
func (m *Manager) Write(pn *node.PagedBTreeNode) (uint64, error) {
	buf := page.Serialize(pn.BTreeNode, m.pageSize)
	newID, err := m.channel.AllocatePage()
	if err != nil {
		return 0, btreeerr.Corruptionf("buffer: allocate page: %v", err)
	}
	if err := m.channel.WritePage(newID, buf); err != nil {
		return 0, btreeerr.Corruptionf("buffer: write page %d: %v", newID, err)
	}
	oldID := pn.PageID
	if oldID != newID {
		delete(m.cache, oldID)
	}
	pn.PageID = newID
	pn.Dirty = false
	delete(m.dirty, oldID)
	m.cache[newID] = pn
	return newID, nil
}

// Delete drops a node from memory and the dirty set. The page id itself is
// not reused.
func (m *Manager) Delete(pageID uint64) {
	delete(m.cache, pageID)
	delete(m.dirty, pageID)
}

// Clear forgets all cached nodes and dirty state; used on rollback.
func (m *Manager) Clear() {
	m.cache = make(map[uint64]*node.PagedBTreeNode)
	m.dirty = make(map[uint64]*node.PagedBTreeNode)
}

func (m *Manager) onChanged(pn *node.PagedBTreeNode) {
	m.dirty[pn.PageID] = pn
}

// Commit walks the cached nodes reachable from rootID bottom-up (children
// before parents, since CoW may change a child's id and so require
// rewriting its parent), writes every dirty node and every node whose child
// moved to a new page id, and returns the new root
// page id, the one value the enclosing storage must persist to locate
// the tree afterward.
//
// It then advances the transaction id, invalidating any iterator that
// captured the prior one.
func (m *Manager) Commit(rootID uint64) (uint64, error) {
	newRoot, err := m.commitRec(rootID)
	if err != nil {
		return 0, err
	}
	m.committedRoot = newRoot
	m.txID++
	return newRoot, nil
}

// commitRec walks the cached subtree under id. A node is rewritten when it
// is dirty itself OR any child moved to a new page id: a clean parent of a
// dirty child must still be rewritten, since its on-disk child pointer now
// names the stale pre-CoW page.
func (m *Manager) commitRec(id uint64) (uint64, error) {
	pn, cached := m.cache[id]
	if !cached {
		// Never materialized this transaction; the on-disk image is current.
		return id, nil
	}
	changed := pn.Dirty
	if !pn.IsLeaf {
		for i, childID := range pn.ChildIDs {
			newChildID, err := m.commitRec(childID)
			if err != nil {
				return 0, err
			}
			if newChildID != childID {
				pn.ChildIDs[i] = newChildID
				changed = true
			}
		}
	}
	if !changed {
		return id, nil
	}
	return m.Write(pn)
}

// Rollback discards all in-memory state accumulated since the last commit
// and advances the transaction id, per the same invalidation rule as
// Commit. It returns the root page id of the last committed
// state (storage.InvalidPageID if nothing was ever committed) so the
// owning tree can rewind to it.
func (m *Manager) Rollback() uint64 {
	m.Clear()
	m.txID++
	return m.committedRoot
}
