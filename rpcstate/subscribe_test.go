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
	"context"
	"testing"
	"time"

	"github.com/chebykin/substrate/rpcstate"
	"github.com/stretchr/testify/require"
)

func TestStorageNotifierDeliversToMatchingSubscriber(t *testing.T) {
	n := rpcstate.NewStorageNotifier()
	defer n.Close()

	sub := n.SubscribeStorage([][]byte{[]byte("k1")})
	defer sub.Unsubscribe()

	block := rpcstate.BlockHash{1}
	n.NotifyBlock(rpcstate.StorageChangeSet{
		Block: block,
		Changes: []rpcstate.KeyValue{
			{Key: []byte("k1"), Value: []byte("v1")},
			{Key: []byte("other"), Value: []byte("v2")},
		},
	})

	select {
	case got := <-sub.Changes:
		require.Equal(t, block, got.Block)
		require.Len(t, got.Changes, 1)
		require.Equal(t, "k1", string(got.Changes[0].Key))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestStorageNotifierSkipsNonMatchingBlocks(t *testing.T) {
	n := rpcstate.NewStorageNotifier()
	defer n.Close()

	sub := n.SubscribeStorage([][]byte{[]byte("k1")})
	defer sub.Unsubscribe()

	n.NotifyBlock(rpcstate.StorageChangeSet{
		Block:   rpcstate.BlockHash{1},
		Changes: []rpcstate.KeyValue{{Key: []byte("unwatched"), Value: []byte("v")}},
	})

	select {
	case <-sub.Changes:
		t.Fatal("should not have received a notification for an unwatched key")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStorageNotifierEmptyKeySetWatchesEverything(t *testing.T) {
	n := rpcstate.NewStorageNotifier()
	defer n.Close()

	sub := n.SubscribeStorage(nil)
	defer sub.Unsubscribe()

	n.NotifyBlock(rpcstate.StorageChangeSet{
		Block:   rpcstate.BlockHash{2},
		Changes: []rpcstate.KeyValue{{Key: []byte("anything"), Value: []byte("v")}},
	})

	select {
	case got := <-sub.Changes:
		require.Len(t, got.Changes, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestSubscribeStorageDeliversInitialSnapshotThenBlocks(t *testing.T) {
	chain := newFakeChain()
	notifier := rpcstate.NewStorageNotifier()
	defer notifier.Close()

	sub, err := rpcstate.SubscribeStorage(context.Background(), chain, notifier, [][]byte{[]byte("2")})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case initial := <-sub.Changes:
		// newFakeChain's best block is block2, where key "2" holds "2".
		require.Equal(t, chain.hashes[2], initial.Block)
		require.Len(t, initial.Changes, 1)
		require.Equal(t, "2", string(initial.Changes[0].Key))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	notifier.NotifyBlock(rpcstate.StorageChangeSet{
		Block:   rpcstate.BlockHash{9},
		Changes: []rpcstate.KeyValue{{Key: []byte("2"), Value: []byte("new")}},
	})

	select {
	case next := <-sub.Changes:
		require.Equal(t, rpcstate.BlockHash{9}, next.Block)
		require.Len(t, next.Changes, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for follow-up notification")
	}
}

func TestStorageNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := rpcstate.NewStorageNotifier()
	defer n.Close()

	sub := n.SubscribeStorage(nil)
	sub.Unsubscribe()

	_, open := <-sub.Changes
	require.False(t, open)
}
