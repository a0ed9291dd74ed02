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

package rpcstate

import (
	"bytes"
	"context"
	"fmt"
)

// BlockHash is an opaque 32-byte block identifier, hex-printable the way a
// chain hash normally is.
type BlockHash [32]byte

func (h BlockHash) String() string { return fmt.Sprintf("%x", h[:]) }

// BlockSource resolves the block-number <-> hash mapping and reads storage
// that QueryStorage needs; a thin seam so the RPC layer doesn't have to pull
// in a concrete chain backend to be testable.
type BlockSource interface {
	// BlockNumber returns the number of the block identified by hash, or
	// ok == false if hash is not known to this chain.
	BlockNumber(ctx context.Context, hash BlockHash) (number uint64, ok bool, err error)
	// BlockHashAt returns the canonical hash of the block at number, or
	// ok == false if there is no such block yet.
	BlockHashAt(ctx context.Context, number uint64) (hash BlockHash, ok bool, err error)
	// BestBlockHash returns the current chain head.
	BestBlockHash(ctx context.Context) (BlockHash, error)
	// StorageAt returns the value of key as of the state right after hash,
	// or nil if the key has no value there.
	StorageAt(ctx context.Context, hash BlockHash, key []byte) ([]byte, error)
}

// InvalidBlockRangeError reports a query_storage range that cannot be
// served, naming both endpoints the way the caller supplied them (a hash
// that failed to resolve is rendered as "UnknownBlock: ...", mirroring how a
// resolvable endpoint is rendered as its block number).
type InvalidBlockRangeError struct {
	From    string
	To      string
	Details string
}

func (e *InvalidBlockRangeError) Error() string {
	return fmt.Sprintf("invalid block range %s..%s: %s", e.From, e.To, e.Details)
}

func invalidRange(from, to string, detailsFormat string, args ...any) *InvalidBlockRangeError {
	return &InvalidBlockRangeError{From: from, To: to, Details: fmt.Sprintf(detailsFormat, args...)}
}

// StorageChangeSet is the set of key/value pairs that changed (relative to
// the previous entry emitted for the same query) as of one block, keyed by
// that block's hash. A nil Value means the key held no value there.
type StorageChangeSet struct {
	Block   BlockHash
	Changes []KeyValue
}

// KeyValue pairs a storage key with the value observed for it.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// QueryStorage returns, for each block in [from, to] (to defaults to the
// current best block when nil), the subset of keys whose value differs from
// the value last reported for the same key earlier in the range. The first
// block in the range is always emitted in full, establishing the baseline
// every later diff is taken against.
func QueryStorage(ctx context.Context, src BlockSource, keys [][]byte, from, to *BlockHash) ([]StorageChangeSet, error) {
	if from == nil {
		return nil, fmt.Errorf("rpcstate: from block is required")
	}

	fromNum, ok, err := src.BlockNumber(ctx, *from)
	if err != nil {
		return nil, err
	}
	if !ok {
		toStr := "None"
		if to != nil {
			toStr = to.String()
		}
		return nil, invalidRange(fmt.Sprintf("UnknownBlock: header not found in db: %s", from), toStr,
			"UnknownBlock: header not found in db: %s", from)
	}

	var toHash BlockHash
	var toNum uint64
	if to == nil {
		toHash, err = src.BestBlockHash(ctx)
		if err != nil {
			return nil, err
		}
		toNum, ok, err = src.BlockNumber(ctx, toHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("rpcstate: best block hash did not resolve to a number")
		}
	} else {
		toHash = *to
		toNum, ok, err = src.BlockNumber(ctx, toHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidRange(from.String(), fmt.Sprintf("UnknownBlock: header not found in db: %s", to),
				"UnknownBlock: header not found in db: %s", to)
		}
	}

	if fromNum >= toNum {
		return nil, invalidRange(fmt.Sprintf("%d (%s)", fromNum, from), fmt.Sprintf("%d (%s)", toNum, toHash),
			"from number >= to number")
	}

	last := make(map[string][]byte, len(keys))
	haveLast := make(map[string]bool, len(keys))

	var out []StorageChangeSet
	for n := fromNum; n <= toNum; n++ {
		hash, ok, err := src.BlockHashAt(ctx, n)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("rpcstate: no canonical block at number %d within range", n)
		}

		var changes []KeyValue
		for _, key := range keys {
			value, err := src.StorageAt(ctx, hash, key)
			if err != nil {
				return nil, err
			}
			ks := string(key)
			if n == fromNum || !haveLast[ks] || !bytes.Equal(last[ks], value) {
				changes = append(changes, KeyValue{Key: key, Value: value})
			}
			last[ks] = value
			haveLast[ks] = true
		}

		// One entry per block in [from, to], even when nothing changed: it
		// keeps len(out) == to-from+1 so callers can line results up with
		// block numbers positionally, instead of having to re-derive which
		// blocks were skipped.
		out = append(out, StorageChangeSet{Block: hash, Changes: changes})
	}

	return out, nil
}
