// Copyright 2017 go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// Copyright 2026 The Substrate-Go Authors
// (adapted for digest-arithmetic use)
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

// Package mathutil holds small overflow-checked integer helpers used by the
// changes-trie digest arithmetic, where digest_interval^level computations
// must not silently wrap on a misconfigured chain.
package mathutil

import "math/bits"

// AbsoluteDifference returns the absolute value of x-y in uint64 format.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// SafeMul returns x*y and reports whether the multiplication overflowed.
func SafeMul(x, y uint64) (uint64, bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y uint64) uint64 {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Pow returns base^exp and reports whether any intermediate multiplication
// overflowed a uint64.
func Pow(base uint64, exp uint32) (uint64, bool) {
	result := uint64(1)
	for i := uint32(0); i < exp; i++ {
		v, overflow := SafeMul(result, base)
		if overflow {
			return 0, true
		}
		result = v
	}
	return result, false
}
