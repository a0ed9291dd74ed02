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
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	gobtree "github.com/google/btree"
	tidbtree "github.com/tidwall/btree"
	"go.uber.org/zap"
)

type digestAcc[N Num] struct {
	key    []byte
	blocks *roaring64.Bitmap
	last   N
	hasAny bool
}

// prepareDigestInput produces the top-level and per-child DigestIndex input
// pairs, plus the covered-ancestor-blocks list (spec §4.F).
func prepareDigestInput[N Num](
	ctx context.Context,
	logger *zap.Logger,
	metrics *Metrics,
	parent Anchor[N],
	cfg ConfigurationRange[N],
	storage RootStore[N],
	block N,
) ([]InputPair[N], map[string][]InputPair[N], []N, error) {
	buildSkewed := cfg.End != nil && *cfg.End == block

	blockForDigest := block
	if buildSkewed {
		if _, end, ok := NextMaxLevelDigestRange(cfg, block); ok {
			blockForDigest = end
		}
	}

	coveredRaw := DigestBuildIterator(cfg, blockForDigest)
	if len(coveredRaw) == 0 {
		return nil, nil, nil, nil
	}

	// Defensive ordered set: digest_build_iterator must already be ascending
	// and unique (spec §4.A); this re-asserts it rather than trusting it
	// blindly, at the cost of one pass over a small (<= digest_interval)
	// slice.
	coveredSet := gobtree.NewG[N](8, func(a, b N) bool { return numToUint64(a) < numToUint64(b) })
	for _, b := range coveredRaw {
		if coveredSet.Has(b) {
			panic(fmt.Sprintf("changestrie: digest_build_iterator returned duplicate block %s", fmtBlock(b)))
		}
		coveredSet.ReplaceOrInsert(b)
	}
	covered := make([]N, 0, coveredSet.Len())
	coveredSet.Ascend(func(b N) bool {
		covered = append(covered, b)
		return true
	})

	var topMap tidbtree.Map[string, *digestAcc[N]]
	childMaps := map[string]*tidbtree.Map[string, *digestAcc[N]]{}

	insert := func(m *tidbtree.Map[string, *digestAcc[N]], key []byte, buildBlock N) {
		if existing, ok := m.Get(string(key)); ok {
			if !(existing.hasAny && numToUint64(existing.last) == numToUint64(buildBlock)) {
				existing.blocks.Add(numToUint64(buildBlock))
				existing.last = buildBlock
				existing.hasAny = true
			}
			return
		}
		bm := roaring64.New()
		bm.Add(numToUint64(buildBlock))
		m.Set(string(key), &digestAcc[N]{key: key, blocks: bm, last: buildBlock, hasAny: true})
	}

	for _, b := range covered {
		trieRoot, ok, err := storage.Root(ctx, parent, b)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
		}
		if !ok {
			return nil, nil, nil, fmt.Errorf("No changes trie root for block %s", fmtBlock(b))
		}

		populated := storage.WithCachedChangedKeys(ctx, trieRoot, func(cached CachedChangedKeys) {
			for _, key := range cached.Top {
				insert(&topMap, []byte(key), b)
			}
			for sk, keys := range cached.Children {
				cm, ok := childMaps[sk]
				if !ok {
					cm = &tidbtree.Map[string, *digestAcc[N]]{}
					childMaps[sk] = cm
				}
				for _, key := range keys {
					insert(cm, []byte(key), b)
				}
			}
		})
		if populated {
			metrics.ObserveCacheHit()
			logger.Debug("digest pass: cache hit, skipping trie open", zap.String("block", fmtBlock(b)))
			continue
		}

		trieReader, err := storage.OpenTrie(ctx, trieRoot)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("changestrie: opening trie at block %s: %w", fmtBlock(b), err)
		}

		childrenRoots := map[string]TrieRoot{}
		if err := trieReader.ForChildIndexWithPrefix(ctx, ChildIndexPrefix(b), func(storageKey []byte, childRoot TrieRoot) {
			childrenRoots[string(storageKey)] = childRoot
		}); err != nil {
			return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
		}

		if err := trieReader.ForKeysWithPrefix(ctx, ExtrinsicIndexPrefix(b), func(encoded []byte) {
			if key, ok := DecodeExtrinsicIndexKey[N](encoded); ok {
				insert(&topMap, key, b)
			}
			// Decode failures are forward-compatibility noise, not errors
			// (spec §7): silently skipped.
		}); err != nil {
			return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
		}
		if err := trieReader.ForKeysWithPrefix(ctx, DigestIndexPrefix(b), func(encoded []byte) {
			if key, ok := DecodeDigestIndexKey[N](encoded); ok {
				insert(&topMap, key, b)
			}
		}); err != nil {
			return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
		}

		for sk, childRoot := range childrenRoots {
			cm, ok := childMaps[sk]
			if !ok {
				cm = &tidbtree.Map[string, *digestAcc[N]]{}
				childMaps[sk] = cm
			}
			childTrie, err := storage.OpenTrie(ctx, childRoot)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("changestrie: opening child trie %x at block %s: %w", sk, fmtBlock(b), err)
			}
			if err := childTrie.ForKeysWithPrefix(ctx, ExtrinsicIndexPrefix(b), func(encoded []byte) {
				if key, ok := DecodeExtrinsicIndexKey[N](encoded); ok {
					insert(cm, key, b)
				}
			}); err != nil {
				return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
			}
			if err := childTrie.ForKeysWithPrefix(ctx, DigestIndexPrefix(b), func(encoded []byte) {
				if key, ok := DecodeDigestIndexKey[N](encoded); ok {
					insert(cm, key, b)
				}
			}); err != nil {
				return nil, nil, nil, fmt.Errorf("changestrie: %w", err)
			}
		}
	}

	top := flattenDigestMap(block, &topMap)
	children := make(map[string][]InputPair[N], len(childMaps))
	for sk, cm := range childMaps {
		children[sk] = flattenDigestMap(block, cm)
	}

	return top, children, covered, nil
}

func flattenDigestMap[N Num](block N, m *tidbtree.Map[string, *digestAcc[N]]) []InputPair[N] {
	out := make([]InputPair[N], 0, m.Len())
	m.Scan(func(key string, entry *digestAcc[N]) bool {
		blocks := make([]N, 0, entry.blocks.GetCardinality())
		it := entry.blocks.Iterator()
		for it.HasNext() {
			blocks = append(blocks, uint64ToNum[N](it.Next()))
		}
		out = append(out, digestPair(block, entry.key, blocks))
		return true
	})
	return out
}
