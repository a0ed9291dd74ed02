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
	"context"
	"sync"
)

// StorageSubscription delivers one StorageChangeSet per new block for as
// long as the caller keeps reading Changes and hasn't called Unsubscribe.
type StorageSubscription struct {
	Changes <-chan StorageChangeSet

	notifier *StorageNotifier
	id       uint64
}

// Unsubscribe stops further delivery and releases the subscription's
// channel. Safe to call more than once.
func (s *StorageSubscription) Unsubscribe() {
	s.notifier.remove(s.id)
}

// StorageNotifier fans out per-block storage changes to every subscriber
// watching a given key set. A block producer calls NotifyBlock once per new
// block; SubscribeStorage registers a new listener.
type StorageNotifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]*subscriber
}

type subscriber struct {
	keys map[string]struct{}
	ch   chan StorageChangeSet
}

// NewStorageNotifier returns an empty notifier ready to accept subscribers.
func NewStorageNotifier() *StorageNotifier {
	return &StorageNotifier{listeners: make(map[uint64]*subscriber)}
}

// SubscribeStorage registers a new listener for changes to keys (all keys,
// if empty) and returns a subscription whose Changes channel receives one
// StorageChangeSet per NotifyBlock call that touches at least one watched
// key. The channel has a small buffer; a slow subscriber that falls behind
// has its oldest unread change-set silently dropped rather than blocking
// the notifier.
func (n *StorageNotifier) SubscribeStorage(keys [][]byte) *StorageSubscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[string(k)] = struct{}{}
	}

	id := n.nextID
	n.nextID++
	sub := &subscriber{keys: keySet, ch: make(chan StorageChangeSet, 16)}
	n.listeners[id] = sub

	return &StorageSubscription{Changes: sub.ch, notifier: n, id: id}
}

func (n *StorageNotifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.listeners[id]; ok {
		close(sub.ch)
		delete(n.listeners, id)
	}
}

// NotifyBlock delivers change to every subscriber watching at least one of
// its changed keys (or watching all keys, via an empty subscription key
// set). Intended to be called once per newly-imported block.
func (n *StorageNotifier) NotifyBlock(change StorageChangeSet) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.listeners {
		filtered := change
		if len(sub.keys) > 0 {
			filtered = StorageChangeSet{Block: change.Block}
			for _, kv := range change.Changes {
				if _, ok := sub.keys[string(kv.Key)]; ok {
					filtered.Changes = append(filtered.Changes, kv)
				}
			}
			if len(filtered.Changes) == 0 {
				continue
			}
		}

		select {
		case sub.ch <- filtered:
		default:
			// Drop the oldest buffered entry to make room rather than
			// block the notifier on one slow subscriber.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- filtered:
			default:
			}
		}
	}
}

// SubscribeStorage registers a subscription against notifier and delivers
// one initial StorageChangeSet holding the current best block's pre-state
// for keys, followed by one set per subsequent NotifyBlock call that touches
// a watched key (any key, if keys is empty). When keys is empty the initial
// set carries no changes. src resolves the best block and reads its current
// values.
func SubscribeStorage(ctx context.Context, src BlockSource, notifier *StorageNotifier, keys [][]byte) (*StorageSubscription, error) {
	best, err := src.BestBlockHash(ctx)
	if err != nil {
		return nil, err
	}

	initial := StorageChangeSet{Block: best}
	for _, key := range keys {
		value, err := src.StorageAt(ctx, best, key)
		if err != nil {
			return nil, err
		}
		initial.Changes = append(initial.Changes, KeyValue{Key: key, Value: value})
	}

	inner := notifier.SubscribeStorage(keys)
	out := make(chan StorageChangeSet, 1)
	go func() {
		out <- initial
		for cs := range inner.Changes {
			out <- cs
		}
		close(out)
	}()

	return &StorageSubscription{Changes: out, notifier: notifier, id: inner.id}, nil
}

// Close shuts down every active subscription's channel.
func (n *StorageNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.listeners {
		close(sub.ch)
		delete(n.listeners, id)
	}
}
