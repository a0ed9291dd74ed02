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

// OverlayedValue is a single overlay entry. HasValue=false marks the entry as
// a deletion; HasValue=true means the entry writes Value. HasExtrinsics distinguishes system-written entries (no extrinsic set,
// ignored by the builder) from user extrinsics.
type OverlayedValue struct {
	Value         []byte
	HasValue      bool
	Extrinsics    []uint32
	HasExtrinsics bool
}

// ChildInfo is opaque associative metadata a backend needs to resolve reads
// against a child storage scope.
type ChildInfo struct {
	UniqueID string
}

type childChangeSet struct {
	entries map[string]OverlayedValue
	info    ChildInfo
}

// ChangeSet is one layer (prospective or committed) of pending writes.
type ChangeSet struct {
	Top      map[string]OverlayedValue
	children map[string]*childChangeSet
}

// NewChangeSet returns an empty ChangeSet.
func NewChangeSet() ChangeSet {
	return ChangeSet{Top: map[string]OverlayedValue{}, children: map[string]*childChangeSet{}}
}

// SetTop records a top-level overlay entry.
func (cs *ChangeSet) SetTop(key string, v OverlayedValue) { cs.Top[key] = v }

// SetChild records a child-storage overlay entry, creating the child scope
// (with info) if this is its first mention in this change set.
func (cs *ChangeSet) SetChild(storageKey string, info ChildInfo, key string, v OverlayedValue) {
	c, ok := cs.children[storageKey]
	if !ok {
		c = &childChangeSet{entries: map[string]OverlayedValue{}, info: info}
		cs.children[storageKey] = c
	}
	c.entries[key] = v
}

// Overlay is the not-yet-sealed changes for the pending block (spec §3/§4.B).
type Overlay struct {
	Prospective ChangeSet
	Committed   ChangeSet
}

// NewOverlay returns an empty Overlay.
func NewOverlay() *Overlay {
	return &Overlay{Prospective: NewChangeSet(), Committed: NewChangeSet()}
}

// scopeEntries returns the committed then prospective entries map for a
// scope (top when storageKey == nil, otherwise that child).
func (o *Overlay) scopeEntries(storageKey *string) (committed, prospective map[string]OverlayedValue) {
	if storageKey == nil {
		return o.Committed.Top, o.Prospective.Top
	}
	if c, ok := o.Committed.children[*storageKey]; ok {
		committed = c.entries
	}
	if p, ok := o.Prospective.children[*storageKey]; ok {
		prospective = p.entries
	}
	return committed, prospective
}

// Storage returns the overlay's final view of key in the top scope:
// hasEntry is false if the overlay has no opinion, true with isDeletion=true
// for a deletion, true with isDeletion=false and value set for a write.
// Prospective wins over committed when both have an entry, matching a
// pending block where prospective changes are the most recent.
func (o *Overlay) Storage(key []byte) (value []byte, hasEntry bool, isDeletion bool) {
	return lookupFinal(o.Committed.Top, o.Prospective.Top, key)
}

// ChildStorage is Storage's child-scope counterpart.
func (o *Overlay) ChildStorage(storageKey string, key []byte) (value []byte, hasEntry bool, isDeletion bool) {
	committed, prospective := o.scopeEntries(&storageKey)
	return lookupFinal(committed, prospective, key)
}

func lookupFinal(committed, prospective map[string]OverlayedValue, key []byte) (value []byte, hasEntry bool, isDeletion bool) {
	if v, ok := prospective[string(key)]; ok {
		return v.Value, true, !v.HasValue
	}
	if v, ok := committed[string(key)]; ok {
		return v.Value, true, !v.HasValue
	}
	return nil, false, false
}

// ChildInfo looks up the ChildInfo for storageKey across both change sets,
// preferring prospective.
func (o *Overlay) ChildInfo(storageKey string) (ChildInfo, bool) {
	if c, ok := o.Prospective.children[storageKey]; ok {
		return c.info, true
	}
	if c, ok := o.Committed.children[storageKey]; ok {
		return c.info, true
	}
	return ChildInfo{}, false
}

// ChildStorageKeys returns the set of every child storage key appearing in
// either change set.
func (o *Overlay) ChildStorageKeys() []string {
	seen := map[string]struct{}{}
	for k := range o.Prospective.children {
		seen[k] = struct{}{}
	}
	for k := range o.Committed.children {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// topEntries returns (committed, prospective) for the top scope.
func (o *Overlay) topEntries() (map[string]OverlayedValue, map[string]OverlayedValue) {
	return o.Committed.Top, o.Prospective.Top
}

// childTopEntries returns (committed, prospective) for a child scope.
func (o *Overlay) childTopEntries(storageKey string) (map[string]OverlayedValue, map[string]OverlayedValue) {
	return o.scopeEntries(&storageKey)
}
