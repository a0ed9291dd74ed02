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

// Package config loads the digest hierarchy's shape and its effective
// ranges from a YAML document, the way an operator hand-edits a node's
// changes-trie settings alongside the rest of its chain configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chebykin/substrate/changestrie"
)

// File is the on-disk shape of a changes-trie configuration file: the
// current digest settings plus the full history of past settings, each
// closed off at the block it stopped applying.
type File struct {
	Digest   Digest   `yaml:"digest"`
	History  []Digest `yaml:"history,omitempty"`
}

// Digest is one YAML-level ConfigurationRange[uint64]: digest_interval and
// digest_levels as they applied starting at zero, and (for a closed,
// historical range) the block the range ended at.
type Digest struct {
	DigestInterval uint32  `yaml:"digest_interval"`
	DigestLevels   uint32  `yaml:"digest_levels"`
	Zero           uint64  `yaml:"zero"`
	End            *uint64 `yaml:"end,omitempty"`
}

func (d Digest) toRange() changestrie.ConfigurationRange[uint64] {
	return changestrie.ConfigurationRange[uint64]{
		Config: changestrie.Configuration{DigestInterval: d.DigestInterval, DigestLevels: d.DigestLevels},
		Zero:   d.Zero,
		End:    d.End,
	}
}

// Load reads and validates a changes-trie configuration file at path,
// returning the currently-effective range followed by every historical
// range in the order they were recorded.
func Load(path string) (current changestrie.ConfigurationRange[uint64], history []changestrie.ConfigurationRange[uint64], err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := f.Digest.toRange().Config.Validate(); err != nil {
		return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: %s: current digest: %w", path, err)
	}
	if f.Digest.End != nil {
		return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: %s: current digest must not have an end block", path)
	}

	history = make([]changestrie.ConfigurationRange[uint64], 0, len(f.History))
	for i, h := range f.History {
		if err := h.toRange().Config.Validate(); err != nil {
			return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: %s: history[%d]: %w", path, i, err)
		}
		if h.End == nil {
			return changestrie.ConfigurationRange[uint64]{}, nil, fmt.Errorf("config: %s: history[%d] must carry an end block", path, i)
		}
		history = append(history, h.toRange())
	}

	return f.Digest.toRange(), history, nil
}
