package storage

import "github.com/cockroachdb/errors"

// MemChannel is an in-memory Channel, used by tests and by callers that
// never need durability (property tests over pageSize in {128,512,4096}).
type MemChannel struct {
	pageSize int
	pages    map[uint64]Page
	next     uint64
}

// NewMemChannel returns a Channel that never touches disk.
func NewMemChannel(pageSize int) *MemChannel {
	return &MemChannel{
		pageSize: pageSize,
		pages:    make(map[uint64]Page),
		next:     0,
	}
}

func (m *MemChannel) PageSize() int { return m.pageSize }

func (m *MemChannel) AllocatePage() (uint64, error) {
	id := m.next
	m.next++
	m.pages[id] = make(Page, m.pageSize)
	return id, nil
}

func (m *MemChannel) ReadPage(id uint64) (Page, error) {
	pg, ok := m.pages[id]
	if !ok {
		return nil, errors.Newf("storage: no such page %d", id)
	}
	cp := make(Page, len(pg))
	copy(cp, pg)
	return cp, nil
}

func (m *MemChannel) WritePage(id uint64, p Page) error {
	if _, ok := m.pages[id]; !ok {
		return errors.Newf("storage: write to unallocated page %d", id)
	}
	cp := make(Page, len(p))
	copy(cp, p)
	m.pages[id] = cp
	return nil
}

func (m *MemChannel) Close() error { return nil }
