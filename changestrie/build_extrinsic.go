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
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/btree"
)

// extrinsicAcc is one scope's accumulation entry: the key that survived the
// temporary-write filter, plus the (possibly growing) set of extrinsics that
// touched it across the committed-then-prospective pass.
type extrinsicAcc struct {
	key        []byte
	extrinsics *roaring.Bitmap
}

// prepareExtrinsicsInput produces the top-level and per-child ExtrinsicIndex
// input pairs for the pending block (spec §4.E).
func prepareExtrinsicsInput[N Num](ctx context.Context, backend Backend, block N, overlay *Overlay) ([]InputPair[N], map[string][]InputPair[N], error) {
	childKeys := overlay.ChildStorageKeys()
	sort.Strings(childKeys)

	topCommitted, topProspective := overlay.topEntries()
	top, err := extrinsicsForScope(ctx, backend, block, topCommitted, topProspective, nil, nil, overlay)
	if err != nil {
		return nil, nil, err
	}

	children := make(map[string][]InputPair[N], len(childKeys))
	for _, sk := range childKeys {
		info, _ := overlay.ChildInfo(sk)
		committed, prospective := overlay.childTopEntries(sk)
		pairs, err := extrinsicsForScope(ctx, backend, block, committed, prospective, &sk, &info, overlay)
		if err != nil {
			return nil, nil, err
		}
		children[sk] = pairs
	}

	return top, children, nil
}

func extrinsicsForScope[N Num](
	ctx context.Context,
	backend Backend,
	block N,
	committed, prospective map[string]OverlayedValue,
	storageKey *string,
	childInfo *ChildInfo,
	overlay *Overlay,
) ([]InputPair[N], error) {
	var acc btree.Map[string, *extrinsicAcc]

	visit := func(key string, v OverlayedValue) error {
		if !v.HasExtrinsics {
			return nil
		}
		if existing, ok := acc.Get(key); ok {
			existing.extrinsics.AddMany(v.Extrinsics)
			return nil
		}

		// Temporary-write filter: decide once, on first insertion, using the
		// merged overlay view (spec §4.E step 2, §9 open question).
		var finalHasValue, finalIsDeletion bool
		if storageKey != nil {
			_, finalHasValue, finalIsDeletion = overlay.ChildStorage(*storageKey, []byte(key))
		} else {
			_, finalHasValue, finalIsDeletion = overlay.Storage([]byte(key))
		}
		if !finalHasValue || finalIsDeletion {
			var exists bool
			var err error
			if storageKey != nil {
				if childInfo == nil {
					return fmt.Errorf("changestrie: child storage key %x has no ChildInfo", *storageKey)
				}
				exists, err = backend.ExistsChildStorage(ctx, *storageKey, *childInfo, []byte(key))
			} else {
				exists, err = backend.ExistsStorage(ctx, []byte(key))
			}
			if err != nil {
				return fmt.Errorf("changestrie: backend read failed for key %x: %w", []byte(key), err)
			}
			if !exists {
				return nil
			}
		}

		bm := roaring.New()
		bm.AddMany(v.Extrinsics)
		acc.Set(key, &extrinsicAcc{key: []byte(key), extrinsics: bm})
		return nil
	}

	for key, v := range committed {
		if err := visit(key, v); err != nil {
			return nil, err
		}
	}
	for key, v := range prospective {
		if err := visit(key, v); err != nil {
			return nil, err
		}
	}

	out := make([]InputPair[N], 0, acc.Len())
	acc.Scan(func(key string, entry *extrinsicAcc) bool {
		extrinsics := make([]uint32, 0, entry.extrinsics.GetCardinality())
		it := entry.extrinsics.Iterator()
		for it.HasNext() {
			extrinsics = append(extrinsics, it.Next())
		}
		out = append(out, extrinsicPair(block, entry.key, extrinsics))
		return true
	})
	return out, nil
}
