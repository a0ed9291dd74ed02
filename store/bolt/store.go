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

// Package bolt is a durable Backend and RootStore backed by a single bbolt
// database file, with an in-process LRU in front of WithCachedChangedKeys so
// a hot ancestor block's keys-set doesn't cost a trie walk on every digest
// build that covers it.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/chebykin/substrate/changestrie"
)

var (
	bucketRoots       = []byte("roots")
	bucketTries       = []byte("tries")
	bucketExistsTop   = []byte("exists_top")
	bucketExistsChild = []byte("exists_child")

	subBucketEntries  = []byte("entries")
	subBucketChildren = []byte("children")
)

// Store is a bbolt-backed Backend and RootStore. trace, when set, logs every
// read path taken (cache hit vs. trie walk) to stdout; mirrors the trace
// toggle on a storage reader that's read on a hot path and needs occasional
// ad-hoc debugging rather than always-on structured logging.
type Store struct {
	db    *bolt.DB
	cache *lru.Cache[changestrie.TrieRoot, changestrie.CachedChangedKeys]
	trace bool
}

// Open opens (creating if necessary) a bbolt database at path and returns a
// Store with an in-process cache of cacheSize entries.
func Open(path string, cacheSize int) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("changestrie/bolt: open %s: %w", path, err)
	}
	cache, err := lru.New[changestrie.TrieRoot, changestrie.CachedChangedKeys](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("changestrie/bolt: new cache: %w", err)
	}
	s := &Store{db: db, cache: cache}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRoots, bucketTries, bucketExistsTop, bucketExistsChild} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("changestrie/bolt: init buckets: %w", err)
	}
	return s, nil
}

// SetTrace toggles stdout tracing of cache hits/misses.
func (s *Store) SetTrace(trace bool) { s.trace = trace }

// Close releases the underlying bbolt database file.
func (s *Store) Close() error { return s.db.Close() }

func blockKey(block uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, block)
	return k
}

// ExistsStorage implements changestrie.Backend.
func (s *Store) ExistsStorage(_ context.Context, key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketExistsTop).Get(key)
		exists = v != nil
		return nil
	})
	return exists, err
}

// ExistsChildStorage implements changestrie.Backend.
func (s *Store) ExistsChildStorage(_ context.Context, storageKey string, _ changestrie.ChildInfo, key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		scope := tx.Bucket(bucketExistsChild).Bucket([]byte(storageKey))
		if scope == nil {
			return nil
		}
		exists = scope.Get(key) != nil
		return nil
	})
	return exists, err
}

// SetExistsStorage records a fixture/seed durable-existence fact for key.
func (s *Store) SetExistsStorage(key []byte, exists bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExistsTop)
		if !exists {
			return b.Delete(key)
		}
		return b.Put(key, []byte{1})
	})
}

// SetExistsChildStorage is SetExistsStorage's child-scope counterpart.
func (s *Store) SetExistsChildStorage(storageKey string, key []byte, exists bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		scope, err := tx.Bucket(bucketExistsChild).CreateBucketIfNotExists([]byte(storageKey))
		if err != nil {
			return err
		}
		if !exists {
			return scope.Delete(key)
		}
		return scope.Put(key, []byte{1})
	})
}

// Root implements changestrie.RootStore. Anchor disambiguation across forks
// is left to the caller (a single changes-trie database instance is assumed
// to track one canonical chain); block alone resolves the root.
func (s *Store) Root(_ context.Context, _ changestrie.Anchor[uint64], block uint64) (changestrie.TrieRoot, bool, error) {
	var root changestrie.TrieRoot
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRoots).Get(blockKey(block))
		if v == nil {
			return nil
		}
		if len(v) != len(root) {
			return fmt.Errorf("changestrie/bolt: corrupt root entry for block %d: got %d bytes", block, len(v))
		}
		copy(root[:], v)
		ok = true
		return nil
	})
	return root, ok, err
}

// PutRoot records root as the changes-trie root built at block.
func (s *Store) PutRoot(block uint64, root changestrie.TrieRoot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRoots).Put(blockKey(block), root[:]); err != nil {
			return err
		}
		_, err := tx.Bucket(bucketTries).CreateBucketIfNotExists(root[:])
		return err
	})
}

// WithCachedChangedKeys implements changestrie.RootStore.
func (s *Store) WithCachedChangedKeys(_ context.Context, root changestrie.TrieRoot, cb func(changestrie.CachedChangedKeys)) bool {
	keys, ok := s.cache.Get(root)
	if !ok {
		return false
	}
	if s.trace {
		fmt.Printf("changestrie/bolt: cache hit for root %x\n", root)
	}
	cb(keys)
	return true
}

// WarmCache installs a fast-path cache entry for root, as a builder would
// after assembling a fresh CachedChangedKeys from an open transaction.
func (s *Store) WarmCache(root changestrie.TrieRoot, keys changestrie.CachedChangedKeys) {
	s.cache.Add(root, keys)
}

// PutEntry records one raw encoded ExtrinsicIndex or DigestIndex entry
// inside the trie at root.
func (s *Store) PutEntry(root changestrie.TrieRoot, encodedKey, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		trie, err := tx.Bucket(bucketTries).CreateBucketIfNotExists(root[:])
		if err != nil {
			return err
		}
		entries, err := trie.CreateBucketIfNotExists(subBucketEntries)
		if err != nil {
			return err
		}
		return entries.Put(encodedKey, value)
	})
}

// PutChildRoot records a ChildIndex entry inside the trie at root, mapping
// storageKey to the child trie's own root.
func (s *Store) PutChildRoot(root changestrie.TrieRoot, storageKey string, childRoot changestrie.TrieRoot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		trie, err := tx.Bucket(bucketTries).CreateBucketIfNotExists(root[:])
		if err != nil {
			return err
		}
		children, err := trie.CreateBucketIfNotExists(subBucketChildren)
		if err != nil {
			return err
		}
		if err := children.Put([]byte(storageKey), childRoot[:]); err != nil {
			return err
		}
		_, err = tx.Bucket(bucketTries).CreateBucketIfNotExists(childRoot[:])
		return err
	})
}

// OpenTrie implements changestrie.RootStore.
func (s *Store) OpenTrie(_ context.Context, root changestrie.TrieRoot) (changestrie.TrieReader, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketTries).Bucket(root[:]) != nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("changestrie/bolt: no trie recorded for root %x", root)
	}
	if s.trace {
		fmt.Printf("changestrie/bolt: opening trie for root %x\n", root)
	}
	return &reader{db: s.db, root: root}, nil
}

type reader struct {
	db   *bolt.DB
	root changestrie.TrieRoot
}

// ForKeysWithPrefix implements changestrie.TrieReader.
func (r *reader) ForKeysWithPrefix(_ context.Context, prefix []byte, fn func(encodedKey []byte)) error {
	return r.db.View(func(tx *bolt.Tx) error {
		trie := tx.Bucket(bucketTries).Bucket(r.root[:])
		if trie == nil {
			return nil
		}
		entries := trie.Bucket(subBucketEntries)
		if entries == nil {
			return nil
		}
		c := entries.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			cp := make([]byte, len(k))
			copy(cp, k)
			fn(cp)
		}
		return nil
	})
}

// ForChildIndexWithPrefix implements changestrie.TrieReader. A trie's
// children bucket is already scoped to the single block it was built at, so
// every entry in it qualifies regardless of prefix.
func (r *reader) ForChildIndexWithPrefix(_ context.Context, _ []byte, fn func(storageKey []byte, childRoot changestrie.TrieRoot)) error {
	return r.db.View(func(tx *bolt.Tx) error {
		trie := tx.Bucket(bucketTries).Bucket(r.root[:])
		if trie == nil {
			return nil
		}
		children := trie.Bucket(subBucketChildren)
		if children == nil {
			return nil
		}
		return children.ForEach(func(k, v []byte) error {
			if len(v) != len(changestrie.TrieRoot{}) {
				return fmt.Errorf("changestrie/bolt: corrupt child root for storage key %x", k)
			}
			var childRoot changestrie.TrieRoot
			copy(childRoot[:], v)
			storageKey := make([]byte, len(k))
			copy(storageKey, k)
			fn(storageKey, childRoot)
			return nil
		})
	})
}
