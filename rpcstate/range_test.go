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

package rpcstate_test

import (
	"testing"

	"github.com/chebykin/substrate/rpcstate"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func TestSplitRangeNoMin(t *testing.T) {
	primary, rest := rpcstate.SplitRange(1, nil)
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 1}, primary)
	require.Nil(t, rest)

	primary, rest = rpcstate.SplitRange(100, nil)
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 100}, primary)
	require.Nil(t, rest)
}

func TestSplitRangeZeroMinIsSameAsNoMin(t *testing.T) {
	primary, rest := rpcstate.SplitRange(1, u64(0))
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 1}, primary)
	require.Nil(t, rest)
}

func TestSplitRangeWithMin(t *testing.T) {
	primary, rest := rpcstate.SplitRange(100, u64(50))
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 50}, primary)
	require.Equal(t, &rpcstate.BlockRange{From: 50, To: 100}, rest)

	primary, rest = rpcstate.SplitRange(100, u64(99))
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 99}, primary)
	require.Equal(t, &rpcstate.BlockRange{From: 99, To: 100}, rest)
}

func TestSplitRangeMinAtOrPastMaxIsSameAsNoMin(t *testing.T) {
	// Idempotence: split_range(n, Some(n)) == (0..n, None).
	primary, rest := rpcstate.SplitRange(100, u64(100))
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 100}, primary)
	require.Nil(t, rest)

	// split >= total, split > total case: (0..total, None), not an inverted
	// or out-of-bounds second range.
	primary, rest = rpcstate.SplitRange(100, u64(150))
	require.Equal(t, rpcstate.BlockRange{From: 0, To: 100}, primary)
	require.Nil(t, rest)
}
