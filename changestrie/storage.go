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

import "context"

// TrieRoot identifies a previously built changes trie.
type TrieRoot [32]byte

// Anchor is the pending block's parent identity: its hash (used to
// disambiguate forks) plus its number.
type Anchor[N Num] struct {
	Hash   TrieRoot
	Number N
}

// CachedChangedKeys is the fully materialized keys-set a cache hit delivers
// for a given trie root: Top holds the top-scope keys, Children holds each
// child scope's keys keyed by storage_key. A cache hit must be authoritative
// and complete across every scope (spec §4.D).
type CachedChangedKeys struct {
	Top      []string
	Children map[string][]string
}

// TrieReader is a read-only view of a previously built changes trie,
// abstracting the prefix-iteration contract of spec §6 without this package
// taking on actual trie/root-hashing machinery (out of scope per spec §1).
type TrieReader interface {
	// ForKeysWithPrefix invokes fn once per encoded key carrying prefix, in
	// the implementation's natural order (the digest pass does not depend
	// on trie-walk order beyond de-duplicating by key).
	ForKeysWithPrefix(ctx context.Context, prefix []byte, fn func(encodedKey []byte)) error
	// ForChildIndexWithPrefix invokes fn once per ChildIndex entry carrying
	// prefix, decoding the child's storage_key and the child trie root.
	ForChildIndexWithPrefix(ctx context.Context, prefix []byte, fn func(storageKey []byte, childRoot TrieRoot)) error
}

// RootStore is the historical-root storage contract of spec §4.D.
type RootStore[N Num] interface {
	// Root returns the changes-trie root previously recorded for block,
	// using anchor to disambiguate forks. ok=false means no root was ever
	// recorded for block, which the builder must surface as a hard error.
	Root(ctx context.Context, anchor Anchor[N], block N) (root TrieRoot, ok bool, err error)
	// WithCachedChangedKeys invokes cb and returns true if a fully
	// materialized keys-set is cached for root; otherwise it returns false
	// without calling cb.
	WithCachedChangedKeys(ctx context.Context, root TrieRoot, cb func(CachedChangedKeys)) bool
	// OpenTrie returns a read-only view of the trie at root, for the
	// fallback prefix-scan path when no cache entry exists.
	OpenTrie(ctx context.Context, root TrieRoot) (TrieReader, error)
}
