package main

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// pebbleIndex wraps Pebble (CockroachDB's LSM storage engine) behind Index
// so it can be benchmarked alongside the paged B+-tree.
type pebbleIndex struct {
	db *pebble.DB
}

func newPebbleIndex(dir string) (*pebbleIndex, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open: %w", err)
	}
	return &pebbleIndex{db: db}, nil
}

func (p *pebbleIndex) Insert(key int64, value []byte) error {
	return p.db.Set(encodePebbleKey(key), value, pebble.NoSync)
}

func (p *pebbleIndex) Get(key int64) ([]byte, error) {
	val, closer, err := p.db.Get(encodePebbleKey(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get: %w", err)
	}
	out := make([]byte, len(val))
	copy(out, val)
	closer.Close()
	return out, nil
}

func (p *pebbleIndex) Delete(key int64) error {
	if err := p.db.Delete(encodePebbleKey(key), pebble.NoSync); err != nil {
		return fmt.Errorf("pebble: delete: %w", err)
	}
	return nil
}

func (p *pebbleIndex) Range(start, end int64) (RangeIterator, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: encodePebbleKey(start),
		UpperBound: encodePebbleKey(end + 1),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: range: %w", err)
	}
	iter.First()
	return &pebbleRangeIterator{iter: iter, first: true}, nil
}

func (p *pebbleIndex) Close() error { return p.db.Close() }

func encodePebbleKey(k int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k))
	return b
}

type pebbleRangeIterator struct {
	iter  *pebble.Iterator
	first bool
	key   int64
	val   []byte
	err   error
}

func (it *pebbleRangeIterator) Next() bool {
	var valid bool
	if it.first {
		it.first = false
		valid = it.iter.Valid()
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return false
	}
	k := it.iter.Key()
	if len(k) != 8 {
		it.err = fmt.Errorf("pebble: unexpected key length %d", len(k))
		return false
	}
	it.key = int64(binary.BigEndian.Uint64(k))
	v := it.iter.Value()
	it.val = make([]byte, len(v))
	copy(it.val, v)
	return true
}

func (it *pebbleRangeIterator) Key() int64    { return it.key }
func (it *pebbleRangeIterator) Value() []byte { return it.val }
func (it *pebbleRangeIterator) Error() error  { return it.err }
func (it *pebbleRangeIterator) Close() error  { return it.iter.Close() }
