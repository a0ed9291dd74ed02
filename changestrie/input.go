// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package changestrie

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

// input-pair kind tags. Each tag occupies the first encoded byte so that no
// two kinds of key ever share a byte prefix, and prefix(block) (kind + block
// number) is an exact bytewise prefix of every key carrying that block.
const (
	kindExtrinsicIndex byte = 0x01
	kindDigestIndex    byte = 0x02
	kindChildIndex     byte = 0x03
)

// Num is the block-number type the builder is generic over. Real chains keep
// block numbers well within 64 bits, so the whole package (the input-pair
// codec below, the digest arithmetic in config.go and the digest pass in
// build_digest.go) converts block numbers through uint64.
type Num interface {
	constraints.Integer
}

func numToUint64[N Num](n N) uint64 {
	return uint64(n)
}

func uint64ToNum[N Num](v uint64) N {
	return N(v)
}

// ExtrinsicIndex identifies the pending block's record of which extrinsics
// touched key within a single scope (top or one child trie).
type ExtrinsicIndex[N Num] struct {
	Block N
	Key   []byte
}

// DigestIndex identifies a digest block's record of which of the ancestor
// blocks it covers indexed key.
type DigestIndex[N Num] struct {
	Block N
	Key   []byte
}

// ChildIndex identifies a child sub-trie recorded at block, keyed by the raw
// child_storage_key. Its value (the child trie root) is populated by the
// caller once the child trie has actually been built; this package only
// ever produces the key half of the pair.
type ChildIndex[N Num] struct {
	Block      N
	StorageKey []byte
}

// InputPair is the builder's output alphabet: either an ExtrinsicIndex or a
// DigestIndex keyed entry, carrying its value. ChildIndex entries are
// returned out-of-band as the map keys of PrepareInput's per-child result
// (spec §3: "to be populated by the caller with the child trie root").
type InputPair[N Num] struct {
	ExtrinsicKey   *ExtrinsicIndex[N]
	ExtrinsicValue []uint32

	DigestKey   *DigestIndex[N]
	DigestValue []N
}

func extrinsicPair[N Num](block N, key []byte, extrinsics []uint32) InputPair[N] {
	return InputPair[N]{ExtrinsicKey: &ExtrinsicIndex[N]{Block: block, Key: key}, ExtrinsicValue: extrinsics}
}

func digestPair[N Num](block N, key []byte, blocks []N) InputPair[N] {
	return InputPair[N]{DigestKey: &DigestIndex[N]{Block: block, Key: key}, DigestValue: blocks}
}

// IsExtrinsic reports whether p carries an ExtrinsicIndex entry.
func (p InputPair[N]) IsExtrinsic() bool { return p.ExtrinsicKey != nil }

// IsDigest reports whether p carries a DigestIndex entry.
func (p InputPair[N]) IsDigest() bool { return p.DigestKey != nil }

// EncodeExtrinsicIndex returns the canonical, injective byte encoding of an
// ExtrinsicIndex key. EncodeDigestIndex and EncodeChildIndex are its
// siblings. All three share the kind-tag + block-number prefix scheme that
// ExtrinsicIndexPrefix/DigestIndexPrefix/ChildIndexPrefix rely on.
func EncodeExtrinsicIndex[N Num](k ExtrinsicIndex[N]) []byte {
	return append(ExtrinsicIndexPrefix(k.Block), k.Key...)
}

func EncodeDigestIndex[N Num](k DigestIndex[N]) []byte {
	return append(DigestIndexPrefix(k.Block), k.Key...)
}

func EncodeChildIndex[N Num](k ChildIndex[N]) []byte {
	return append(ChildIndexPrefix(k.Block), k.StorageKey...)
}

// ExtrinsicIndexPrefix is the key-neutral prefix shared by every
// ExtrinsicIndex entry recorded at block.
func ExtrinsicIndexPrefix[N Num](block N) []byte { return blockPrefix(kindExtrinsicIndex, block) }

// DigestIndexPrefix is the key-neutral prefix shared by every DigestIndex
// entry recorded at block.
func DigestIndexPrefix[N Num](block N) []byte { return blockPrefix(kindDigestIndex, block) }

// ChildIndexPrefix is the key-neutral prefix shared by every ChildIndex
// entry recorded at block.
func ChildIndexPrefix[N Num](block N) []byte { return blockPrefix(kindChildIndex, block) }

func blockPrefix[N Num](kind byte, block N) []byte {
	out := make([]byte, 1+8)
	out[0] = kind
	binary.BigEndian.PutUint64(out[1:], numToUint64(block))
	return out
}

// DecodeExtrinsicIndexKey strips the kind+block prefix from an encoded key
// and returns the trailing raw storage key. Returns false if raw does not
// carry the ExtrinsicIndex kind tag.
func DecodeExtrinsicIndexKey[N Num](raw []byte) (key []byte, ok bool) {
	return decodeWithKind(raw, kindExtrinsicIndex)
}

// DecodeDigestIndexKey is DecodeExtrinsicIndexKey's DigestIndex sibling.
func DecodeDigestIndexKey[N Num](raw []byte) (key []byte, ok bool) {
	return decodeWithKind(raw, kindDigestIndex)
}

// DecodeChildIndexKey is DecodeExtrinsicIndexKey's ChildIndex sibling; the
// returned bytes are the child's storage_key.
func DecodeChildIndexKey[N Num](raw []byte) (storageKey []byte, ok bool) {
	return decodeWithKind(raw, kindChildIndex)
}

func decodeWithKind(raw []byte, kind byte) ([]byte, bool) {
	if len(raw) < 9 || raw[0] != kind {
		return nil, false
	}
	return raw[9:], true
}

func fmtBlock[N Num](block N) string {
	return fmt.Sprintf("%d", numToUint64(block))
}
