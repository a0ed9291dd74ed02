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

// Command changestrie inspects and exercises a changes-trie database: it
// loads the digest configuration from a YAML file, reports the digest
// schedule around a given block, and can build the input pairs a trie
// construction at that block would see against a bbolt-backed store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chebykin/substrate/changestrie"
	"github.com/chebykin/substrate/config"
	"github.com/chebykin/substrate/store/bolt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "changestrie",
		Short: "Inspect and build changes-trie digest input for a chain of blocks",
	}
	root.AddCommand(newScheduleCmd(), newBuildCmd())
	return root
}

func newScheduleCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "schedule <block>",
		Short: "Report whether a block is a digest block, and the ancestors it would cover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var block uint64
			if _, err := fmt.Sscanf(args[0], "%d", &block); err != nil {
				return fmt.Errorf("invalid block number %q: %w", args[0], err)
			}

			current, _, err := config.Load(configPath)
			if err != nil {
				return err
			}

			isDigest, level := changestrie.IsDigestBlock(current, block)
			if !isDigest {
				fmt.Printf("block %d is not a digest block\n", block)
				return nil
			}

			covered := changestrie.DigestBuildIterator(current, block)
			fmt.Printf("block %d is a level-%d digest block, covering %v\n", block, level, covered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "changestrie.yaml", "path to the changes-trie configuration file")
	return cmd
}

func newBuildCmd() *cobra.Command {
	var configPath, dbPath string
	cmd := &cobra.Command{
		Use:   "build <block>",
		Short: "Build the top-scope input pairs a trie construction at block would record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var block uint64
			if _, err := fmt.Sscanf(args[0], "%d", &block); err != nil {
				return fmt.Errorf("invalid block number %q: %w", args[0], err)
			}

			current, _, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store, err := bolt.Open(dbPath, 1024)
			if err != nil {
				return err
			}
			defer store.Close()

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			overlay := changestrie.NewOverlay()
			result, err := changestrie.PrepareInput[uint64](context.Background(), current, store, store,
				changestrie.Anchor[uint64]{Number: block}, block, overlay, logger, nil)
			if err != nil {
				return err
			}

			for pair := range result.Top {
				if pair.IsExtrinsic() {
					fmt.Printf("extrinsic key=%q value=%v\n", pair.ExtrinsicKey.Key, pair.ExtrinsicValue)
				} else {
					fmt.Printf("digest key=%q value=%v\n", pair.DigestKey.Key, pair.DigestValue)
				}
			}
			fmt.Printf("covered digest blocks: %v\n", result.CoveredDigestBlocks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "changestrie.yaml", "path to the changes-trie configuration file")
	cmd.Flags().StringVarP(&dbPath, "db", "d", "changestrie.db", "path to the bbolt changes-trie database")
	return cmd
}
