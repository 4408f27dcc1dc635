// Package page implements the on-disk page image for a node.BTreeNode,
// a fixed-size header followed by the prefix-compressed key array and the
// node kind's payload:
//
//	[0]      kind byte: bit0 = isLeaf, bit1 = isUnique
//	[1]      isRoot byte (0/1)
//	[2:4]    numKeys uint16
//	[4]      prefixLen byte (0..64)
//	[5:13]   prefixValue uint64
//	[13:]    packed suffix bits, ceil(suffixBits*numKeys/8) bytes
//	[...]    values (8 bytes each; leaves and non-unique inner nodes),
//	         then, in inner nodes, child ids (4 bytes each, numKeys+1)
package page

import (
	"encoding/binary"

	"github.com/zoodb/btreeindex/btreeerr"
	"github.com/zoodb/btreeindex/internal/prefix"
	"github.com/zoodb/btreeindex/node"
	"github.com/zoodb/btreeindex/storage"
)

const (
	offKind        = 0
	offIsRoot      = 1
	offNumKeys     = 2
	offPrefixLen   = 4
	offPrefixValue = 5
	offSuffixBits  = 13

	kindLeafBit   = byte(1)
	kindUniqueBit = byte(2)

	valueSize = 8 // bytes per int64 value
	childSize = node.ChildIDSize
)

// Serialize renders n as a fixed-size page image of exactly pageSize
// bytes. serialize(deserialize(bytes)) == bytes holds by construction:
// every field round-trips exactly and unused tail bytes are always zeroed.
func Serialize(n *node.BTreeNode, pageSize int) storage.Page {
	buf := make(storage.Page, pageSize)

	var kind byte
	if n.IsLeaf {
		kind |= kindLeafBit
	}
	if n.Mode == node.Unique {
		kind |= kindUniqueBit
	}
	buf[offKind] = kind
	if n.IsRoot {
		buf[offIsRoot] = 1
	}
	numKeys := len(n.Keys)
	binary.LittleEndian.PutUint16(buf[offNumKeys:], uint16(numKeys))
	buf[offPrefixLen] = byte(n.Prefix.Len)
	binary.LittleEndian.PutUint64(buf[offPrefixValue:], n.Prefix.Value)

	suffixBytes := prefix.SuffixByteLen(numKeys, n.Prefix)
	packed := prefix.PackSuffixes(n.Keys, n.Prefix)
	copy(buf[offSuffixBits:offSuffixBits+suffixBytes], packed)

	dataOff := offSuffixBits + suffixBytes
	if n.IsLeaf || n.Mode == node.NonUnique {
		for i, v := range n.Values {
			binary.LittleEndian.PutUint64(buf[dataOff+i*valueSize:], uint64(v))
		}
		if n.IsLeaf {
			return buf
		}
		dataOff += valueSize * numKeys
	}
	for i, id := range n.ChildIDs {
		binary.LittleEndian.PutUint32(buf[dataOff+i*childSize:], uint32(id))
	}
	return buf
}

// Deserialize is the inverse of Serialize. mode, pageSize and
// valueElementSize must match the tree the page belongs to; they are not
// themselves recorded in the page image (a tree is homogeneous: its mode
// and page size are chosen once at creation and never mixed).
func Deserialize(buf storage.Page, mode node.Mode, pageSize, valueElementSize int) (*node.BTreeNode, error) {
	if len(buf) != pageSize {
		return nil, btreeerr.Corruptionf("page: expected %d bytes, got %d", pageSize, len(buf))
	}
	kind := buf[offKind]
	isLeaf := kind&kindLeafBit != 0
	wantUnique := kind&kindUniqueBit != 0
	if wantUnique != (mode == node.Unique) {
		return nil, btreeerr.Corruptionf("page: mode mismatch in page header")
	}

	n := node.New(mode, isLeaf, pageSize, valueElementSize)
	n.IsRoot = buf[offIsRoot] != 0
	numKeys := int(binary.LittleEndian.Uint16(buf[offNumKeys:]))
	prefixLen := int(buf[offPrefixLen])
	if prefixLen > 64 {
		return nil, btreeerr.Corruptionf("page: invalid prefix length %d", prefixLen)
	}
	prefixValue := binary.LittleEndian.Uint64(buf[offPrefixValue:])
	p := prefix.Prefix{Len: prefixLen, Value: prefixValue}

	suffixBytes := prefix.SuffixByteLen(numKeys, p)
	if offSuffixBits+suffixBytes > len(buf) {
		return nil, btreeerr.Corruptionf("page: suffix array overruns page")
	}
	n.Keys = prefix.UnpackSuffixes(buf[offSuffixBits:offSuffixBits+suffixBytes], p, numKeys)
	n.Prefix = p

	dataOff := offSuffixBits + suffixBytes
	if isLeaf || mode == node.NonUnique {
		values := make([]int64, numKeys)
		for i := 0; i < numKeys; i++ {
			off := dataOff + i*valueSize
			if off+valueSize > len(buf) {
				return nil, btreeerr.Corruptionf("page: value array overruns page")
			}
			values[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
		}
		n.Values = values
		dataOff += valueSize * numKeys
	}
	if !isLeaf {
		ids := make([]uint64, numKeys+1)
		sizes := make([]int, numKeys+1)
		for i := 0; i <= numKeys; i++ {
			off := dataOff + i*childSize
			if off+childSize > len(buf) {
				return nil, btreeerr.Corruptionf("page: child id array overruns page")
			}
			ids[i] = uint64(binary.LittleEndian.Uint32(buf[off:]))
		}
		n.ChildIDs = ids
		n.ChildSizes = sizes
	}
	n.RecomputeSize()
	return n, nil
}
