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

// Package memstore is an in-memory Backend and RootStore, the fixture a test
// wires up instead of a durable database. It mirrors the shape of a real
// store (existence checks, a roots-by-block index, a raw per-root key set)
// without any durability; a single RWMutex is its only concurrency control.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chebykin/substrate/changestrie"
)

type trieData struct {
	entries    map[string][]byte
	childRoots map[string]changestrie.TrieRoot
}

// Store is a Backend and RootStore backed by plain Go maps, guarded by a
// single mutex; good enough for tests and small demos, not for production
// load (see store/bolt for that).
type Store struct {
	mu sync.RWMutex

	topExists   map[string]bool
	childExists map[string]map[string]bool

	rootsByBlock map[uint64]changestrie.TrieRoot
	cached       map[changestrie.TrieRoot]changestrie.CachedChangedKeys
	tries        map[changestrie.TrieRoot]*trieData
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		topExists:    map[string]bool{},
		childExists:  map[string]map[string]bool{},
		rootsByBlock: map[uint64]changestrie.TrieRoot{},
		cached:       map[changestrie.TrieRoot]changestrie.CachedChangedKeys{},
		tries:        map[changestrie.TrieRoot]*trieData{},
	}
}

// SetExistsStorage seeds the top-level durable-existence fixture for key.
func (s *Store) SetExistsStorage(key []byte, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topExists[string(key)] = exists
}

// SetExistsChildStorage seeds the child durable-existence fixture for key.
func (s *Store) SetExistsChildStorage(storageKey string, key []byte, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.childExists[storageKey]
	if !ok {
		m = map[string]bool{}
		s.childExists[storageKey] = m
	}
	m[string(key)] = exists
}

// ExistsStorage implements changestrie.Backend.
func (s *Store) ExistsStorage(_ context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topExists[string(key)], nil
}

// ExistsChildStorage implements changestrie.Backend.
func (s *Store) ExistsChildStorage(_ context.Context, storageKey string, _ changestrie.ChildInfo, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childExists[storageKey][string(key)], nil
}

// PutRoot records root as the changes-trie root built at block. Anchors are
// not modeled: this fixture has no forks, a block number alone identifies a
// root.
func (s *Store) PutRoot(block uint64, root changestrie.TrieRoot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootsByBlock[block] = root
	if _, ok := s.tries[root]; !ok {
		s.tries[root] = &trieData{entries: map[string][]byte{}, childRoots: map[string]changestrie.TrieRoot{}}
	}
}

// PutEntry records one raw encoded key/value pair inside the trie at root
// (an ExtrinsicIndex or DigestIndex entry), for the prefix-walk fallback
// path.
func (s *Store) PutEntry(root changestrie.TrieRoot, encodedKey, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trie(root)
	t.entries[string(encodedKey)] = value
}

// PutChildRoot records a ChildIndex entry inside the trie at root, mapping
// storageKey to the child trie's own root.
func (s *Store) PutChildRoot(root changestrie.TrieRoot, storageKey string, childRoot changestrie.TrieRoot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trie(root)
	t.childRoots[storageKey] = childRoot
	if _, ok := s.tries[childRoot]; !ok {
		s.tries[childRoot] = &trieData{entries: map[string][]byte{}, childRoots: map[string]changestrie.TrieRoot{}}
	}
}

// SetCachedChangedKeys installs a fast-path cache hit for root.
func (s *Store) SetCachedChangedKeys(root changestrie.TrieRoot, keys changestrie.CachedChangedKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[root] = keys
}

func (s *Store) trie(root changestrie.TrieRoot) *trieData {
	t, ok := s.tries[root]
	if !ok {
		t = &trieData{entries: map[string][]byte{}, childRoots: map[string]changestrie.TrieRoot{}}
		s.tries[root] = t
	}
	return t
}

// Root implements changestrie.RootStore.
func (s *Store) Root(_ context.Context, _ changestrie.Anchor[uint64], block uint64) (changestrie.TrieRoot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.rootsByBlock[block]
	return root, ok, nil
}

// WithCachedChangedKeys implements changestrie.RootStore.
func (s *Store) WithCachedChangedKeys(_ context.Context, root changestrie.TrieRoot, cb func(changestrie.CachedChangedKeys)) bool {
	s.mu.RLock()
	keys, ok := s.cached[root]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	cb(keys)
	return true
}

// OpenTrie implements changestrie.RootStore.
func (s *Store) OpenTrie(_ context.Context, root changestrie.TrieRoot) (changestrie.TrieReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tries[root]
	if !ok {
		return nil, fmt.Errorf("memstore: no trie recorded for root %x", root)
	}
	return &reader{store: s, data: t}, nil
}

type reader struct {
	store *Store
	data  *trieData
}

// ForKeysWithPrefix implements changestrie.TrieReader.
func (r *reader) ForKeysWithPrefix(_ context.Context, prefix []byte, fn func(encodedKey []byte)) error {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	keys := make([]string, 0, len(r.data.entries))
	for k := range r.data.entries {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn([]byte(k))
	}
	return nil
}

// ForChildIndexWithPrefix implements changestrie.TrieReader. A trieData is
// already scoped to the single ancestor block its root belongs to, so every
// recorded child root qualifies regardless of prefix.
func (r *reader) ForChildIndexWithPrefix(_ context.Context, _ []byte, fn func(storageKey []byte, childRoot changestrie.TrieRoot)) error {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	keys := make([]string, 0, len(r.data.childRoots))
	for sk := range r.data.childRoots {
		keys = append(keys, sk)
	}
	sort.Strings(keys)
	for _, sk := range keys {
		fn([]byte(sk), r.data.childRoots[sk])
	}
	return nil
}
