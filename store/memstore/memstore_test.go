// Copyright 2026 The Substrate-Go Authors
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

package memstore_test

import (
	"context"
	"testing"

	"github.com/chebykin/substrate/changestrie"
	"github.com/chebykin/substrate/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestStoreExistsStorage(t *testing.T) {
	s := memstore.New()
	s.SetExistsStorage([]byte("k"), true)

	exists, err := s.ExistsStorage(context.Background(), []byte("k"))
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.ExistsStorage(context.Background(), []byte("missing"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreRootUnknownBlock(t *testing.T) {
	s := memstore.New()
	_, ok, err := s.Root(context.Background(), changestrie.Anchor[uint64]{}, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreOpenTrieAndForKeysWithPrefix(t *testing.T) {
	s := memstore.New()
	var root changestrie.TrieRoot
	root[0] = 1
	s.PutRoot(1, root)

	key := changestrie.EncodeExtrinsicIndex(changestrie.ExtrinsicIndex[uint64]{Block: 1, Key: []byte("a")})
	s.PutEntry(root, key, nil)

	reader, err := s.OpenTrie(context.Background(), root)
	require.NoError(t, err)

	var seen [][]byte
	err = reader.ForKeysWithPrefix(context.Background(), changestrie.ExtrinsicIndexPrefix[uint64](1), func(encodedKey []byte) {
		seen = append(seen, encodedKey)
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, key, seen[0])
}

func TestStoreCachedChangedKeysFastPath(t *testing.T) {
	s := memstore.New()
	var root changestrie.TrieRoot
	root[0] = 2
	s.SetCachedChangedKeys(root, changestrie.CachedChangedKeys{Top: []string{"k1", "k2"}})

	var got changestrie.CachedChangedKeys
	populated := s.WithCachedChangedKeys(context.Background(), root, func(keys changestrie.CachedChangedKeys) {
		got = keys
	})
	require.True(t, populated)
	require.Equal(t, []string{"k1", "k2"}, got.Top)
}
