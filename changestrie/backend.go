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

import "context"

// Backend is read-through access to durable storage as it stood before the
// pending block. The builder consults it only to decide whether a key that
// the overlay leaves absent/deleted genuinely existed beforehand (spec §4.C).
type Backend interface {
	ExistsStorage(ctx context.Context, key []byte) (bool, error)
	ExistsChildStorage(ctx context.Context, storageKey string, info ChildInfo, key []byte) (bool, error)
}
