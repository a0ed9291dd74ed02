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

package changestrie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigurationValidate(t *testing.T) {
	require.NoError(t, Configuration{DigestInterval: 4, DigestLevels: 2}.Validate())
	require.Error(t, Configuration{DigestInterval: 1, DigestLevels: 2}.Validate())
	require.Error(t, Configuration{DigestInterval: 4, DigestLevels: 0}.Validate())
}

func rangeNoEnd(interval, levels uint32) ConfigurationRange[uint64] {
	return ConfigurationRange[uint64]{Config: Configuration{DigestInterval: interval, DigestLevels: levels}, Zero: 0}
}

func TestIsDigestBlockLevel1(t *testing.T) {
	cfg := rangeNoEnd(4, 1)
	for _, b := range []uint64{0, 1, 2, 3, 5, 6, 7} {
		isDigest, _ := IsDigestBlock(cfg, b)
		require.False(t, isDigest, "block %d", b)
	}
	isDigest, level := IsDigestBlock(cfg, 4)
	require.True(t, isDigest)
	require.Equal(t, uint32(1), level)
}

func TestIsDigestBlockLevel2(t *testing.T) {
	cfg := rangeNoEnd(4, 2)
	isDigest, level := IsDigestBlock(cfg, 4)
	require.True(t, isDigest)
	require.Equal(t, uint32(1), level)

	isDigest, level = IsDigestBlock(cfg, 16)
	require.True(t, isDigest)
	require.Equal(t, uint32(2), level)

	isDigest, _ = IsDigestBlock(cfg, 8)
	require.True(t, isDigest)
	isDigest, _ = IsDigestBlock(cfg, 12)
	require.True(t, isDigest)
}

func TestDigestBuildIteratorLevel1(t *testing.T) {
	cfg := rangeNoEnd(4, 1)
	require.Equal(t, []uint64{1, 2, 3}, DigestBuildIterator(cfg, 4))
}

func TestDigestBuildIteratorLevel2(t *testing.T) {
	cfg := rangeNoEnd(4, 2)
	require.Equal(t, []uint64{4, 8, 12}, DigestBuildIterator(cfg, 16))
}

func TestDigestBuildIteratorNonDigestBlock(t *testing.T) {
	cfg := rangeNoEnd(4, 1)
	require.Nil(t, DigestBuildIterator(cfg, 5))
}

func TestNextMaxLevelDigestRangeSkewed(t *testing.T) {
	cfg := rangeNoEnd(4, 2)
	start, end, ok := NextMaxLevelDigestRange(cfg, 11)
	require.True(t, ok)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(16), end)
}

func TestDigestBuildIteratorSkewed(t *testing.T) {
	// A skewed digest built at block 11 covers the same ancestors a
	// non-skewed level-2 digest at 16 would have.
	cfg := rangeNoEnd(4, 2)
	_, end, ok := NextMaxLevelDigestRange(cfg, 11)
	require.True(t, ok)
	require.Equal(t, []uint64{4, 8, 12}, DigestBuildIterator(cfg, end))
}
