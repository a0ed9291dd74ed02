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
	"fmt"

	"github.com/chebykin/substrate/mathutil"
)

// Configuration is the branching shape of the digest hierarchy: every
// DigestInterval^L-th block, for L in [1, DigestLevels], is a digest block.
type Configuration struct {
	DigestInterval uint32
	DigestLevels   uint32
}

// ConfigurationRange anchors a Configuration to the window of blocks it
// governs. End, when set, closes the window with a skewed digest at that
// exact block (spec §3, §4.A).
type ConfigurationRange[N Num] struct {
	Config Configuration
	Zero   N
	End    *N
}

// Validate rejects configurations the spec declares malformed.
func (c Configuration) Validate() error {
	if c.DigestInterval < 2 {
		return fmt.Errorf("changestrie: digest_interval must be >= 2, got %d", c.DigestInterval)
	}
	if c.DigestLevels < 1 {
		return fmt.Errorf("changestrie: digest_levels must be >= 1, got %d", c.DigestLevels)
	}
	return nil
}

// IsDigestBlock reports whether block is a digest block under cfg, and if
// so, at which level (the greatest L in [1, digest_levels] such that
// (block-zero) mod digest_interval^L == 0). zero itself is never a digest
// block.
func IsDigestBlock[N Num](cfg ConfigurationRange[N], block N) (isDigest bool, level uint32) {
	if block == cfg.Zero {
		return false, 0
	}
	delta := numToUint64(block) - numToUint64(cfg.Zero)
	for l := cfg.Config.DigestLevels; l >= 1; l-- {
		step, overflow := mathutil.Pow(uint64(cfg.Config.DigestInterval), l)
		if overflow {
			continue
		}
		if step != 0 && delta%step == 0 {
			return true, l
		}
	}
	return false, 0
}

// NextMaxLevelDigestRange returns the max-level digest window containing
// block: Start is the previous max-level boundary (inclusive of zero) and
// End is the first multiple of digest_interval^digest_levels at or after
// block, both relative to zero. Used only to size a skewed digest's
// coverage (spec §4.A).
func NextMaxLevelDigestRange[N Num](cfg ConfigurationRange[N], block N) (start, end N, ok bool) {
	step, overflow := mathutil.Pow(uint64(cfg.Config.DigestInterval), cfg.Config.DigestLevels)
	if overflow || step == 0 {
		var zero N
		return zero, zero, false
	}
	delta := numToUint64(block) - numToUint64(cfg.Zero)
	cycles := mathutil.CeilDiv(delta, step)
	if cycles == 0 {
		cycles = 1
	}
	endDelta := cycles * step
	startDelta := endDelta - step
	return uint64ToNum[N](numToUint64(cfg.Zero) + startDelta), uint64ToNum[N](numToUint64(cfg.Zero) + endDelta), true
}

// DigestBuildIterator yields, in ascending order, the ancestor blocks that a
// digest at block covers under cfg (spec §4.A). Empty if block is not a
// digest block.
func DigestBuildIterator[N Num](cfg ConfigurationRange[N], block N) []N {
	isDigest, level := IsDigestBlock(cfg, block)
	if !isDigest {
		return nil
	}

	subStep, _ := mathutil.Pow(uint64(cfg.Config.DigestInterval), level-1)
	out := make([]N, 0, cfg.Config.DigestInterval)
	for k := uint32(1); k <= cfg.Config.DigestInterval; k++ {
		candidate := numToUint64(block) - uint64(cfg.Config.DigestInterval-k)*subStep
		b := uint64ToNum[N](candidate)
		if isSubDigest, subLevel := IsDigestBlock(cfg, b); isSubDigest && subLevel >= level {
			// Its coverage is subsumed by the digest recorded at b itself.
			continue
		}
		out = append(out, b)
	}
	return out
}
