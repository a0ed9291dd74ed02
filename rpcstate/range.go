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

// Package rpcstate is the light collaborator contract the builder's caller
// exposes over RPC: splitting a query range into the part a changes trie can
// answer and the part that needs a plain block scan, querying storage
// change-sets across a block range, and subscribing to per-block storage
// change notifications.
package rpcstate

// BlockRange is a half-open [From, To) span of block numbers.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange divides [0, max) at min, the earliest block a changes trie can
// answer queries from: the part before min (which a block-by-block scan must
// cover) and the part from min onward (which the changes trie can answer).
// When min == nil, min == 0, or min >= max, no second range is returned and
// the whole range [0, max) is the first half.
func SplitRange(max uint64, min *uint64) (BlockRange, *BlockRange) {
	if min == nil || *min == 0 || *min >= max {
		return BlockRange{From: 0, To: max}, nil
	}
	rest := BlockRange{From: *min, To: max}
	return BlockRange{From: 0, To: *min}, &rest
}
