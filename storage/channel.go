// Package storage provides the fixed-size-page storage channel that backs
// the B+-tree buffer manager. A StorageChannel only knows how to allocate,
// read and write whole pages; it has no notion of tree structure.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
)

// InvalidPageID marks the absence of a page (e.g. "no committed root yet").
const InvalidPageID = ^uint64(0)

// Page is a raw fixed-size block read from or written to disk.
type Page []byte

// Channel is the storage contract the index builds on: read/write a fixed-size
// page by id, allocate a new page id. Copy-on-write is not part of this
// interface: WritePage overwrites the page it is given, and buffer.Manager
// gets copy-on-write by allocating a fresh page id for every node it writes.
type Channel interface {
	PageSize() int
	AllocatePage() (uint64, error)
	ReadPage(id uint64) (Page, error)
	WritePage(id uint64, p Page) error
	Close() error
}

// FilePager is a Channel backed by a single file of fixed-size pages, with
// a small in-memory LRU cache of recently touched pages. Page 0 holds the
// channel's own bookkeeping (page count); callers own every higher id.
type FilePager struct {
	file      *os.File
	pageSize  int
	cache     *lruCache
	pageCount uint64
}

// OpenFilePager opens (or creates) a pager backed by path, with cacheSize
// pages of LRU cache.
func OpenFilePager(path string, pageSize, cacheSize int) (*FilePager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open")
	}

	p := &FilePager{
		file:     f,
		pageSize: pageSize,
		cache:    newLRUCache(cacheSize),
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "storage: stat")
	}
	if info.Size() == 0 {
		p.pageCount = 1
		if err := p.writeHeader(); err != nil {
			return nil, err
		}
	} else {
		hdr, err := p.readPageFromDisk(0)
		if err != nil {
			return nil, errors.Wrap(err, "storage: read header")
		}
		p.pageCount = binary.LittleEndian.Uint64(hdr[:8])
	}

	return p, nil
}

func (p *FilePager) PageSize() int { return p.pageSize }

// AllocatePage reserves a new page id and extends the file with a blank
// page so subsequent reads never observe a hole.
func (p *FilePager) AllocatePage() (uint64, error) {
	id := p.pageCount
	p.pageCount++

	blank := make(Page, p.pageSize)
	if err := p.writePageToDisk(id, blank); err != nil {
		return 0, err
	}
	if err := p.writeHeader(); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadPage returns the page with the given id, from cache or disk.
func (p *FilePager) ReadPage(id uint64) (Page, error) {
	if pg := p.cache.get(id); pg != nil {
		return pg, nil
	}
	pg, err := p.readPageFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.cache.put(id, pg)
	return pg, nil
}

// WritePage writes pg to disk at id and refreshes the cache entry.
func (p *FilePager) WritePage(id uint64, pg Page) error {
	cp := make(Page, len(pg))
	copy(cp, pg)
	p.cache.put(id, cp)
	return p.writePageToDisk(id, pg)
}

func (p *FilePager) Close() error { return p.file.Close() }

func (p *FilePager) offset(id uint64) int64 { return int64(id) * int64(p.pageSize) }

func (p *FilePager) readPageFromDisk(id uint64) (Page, error) {
	pg := make(Page, p.pageSize)
	if _, err := p.file.ReadAt(pg, p.offset(id)); err != nil {
		return nil, fmt.Errorf("storage: read page %d: %w", id, err)
	}
	return pg, nil
}

func (p *FilePager) writePageToDisk(id uint64, pg Page) error {
	if _, err := p.file.WriteAt(pg, p.offset(id)); err != nil {
		return fmt.Errorf("storage: write page %d: %w", id, err)
	}
	return nil
}

func (p *FilePager) writeHeader() error {
	hdr := make(Page, p.pageSize)
	if p.pageCount > 1 {
		existing, err := p.readPageFromDisk(0)
		if err == nil {
			copy(hdr, existing)
		}
	}
	binary.LittleEndian.PutUint64(hdr[:8], p.pageCount)
	return p.writePageToDisk(0, hdr)
}
