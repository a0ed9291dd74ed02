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

// Package changestrie builds the per-block InputPair set that feeds a
// changes trie: the extrinsic-index entries recorded against the pending
// block's own overlay, and the digest-index entries recorded against the
// ancestor blocks this block's position makes it responsible for
// summarizing.
package changestrie

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"
)

// BuildResult is the output of PrepareInput: key-ordered sequences of
// InputPair ready for insertion into a trie builder, plus the
// ancestor blocks the digest pass actually covered (for callers that want to
// prune now-summarized per-block tries). PrepareInput computes every pair
// before it returns; the sequences walk those already-built lists and do not
// read the backend, storage or overlay.
type BuildResult[N Num] struct {
	Top                 iter.Seq[InputPair[N]]
	Children            map[string]iter.Seq[InputPair[N]]
	CoveredDigestBlocks []N
}

// PrepareInput runs the extrinsic and digest passes for block and merges
// their results per scope (spec §4.G, §9). backend and overlay drive the
// extrinsic pass; storage and parent drive the digest pass. logger and
// metrics may be nil, in which case both are no-ops.
func PrepareInput[N Num](
	ctx context.Context,
	cfg ConfigurationRange[N],
	backend Backend,
	storage RootStore[N],
	parent Anchor[N],
	block N,
	overlay *Overlay,
	logger *zap.Logger,
	metrics *Metrics,
) (BuildResult[N], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()
	logger = logger.With(zap.String("block", fmtBlock(block)))

	extrinsicTop, extrinsicChildren, err := prepareExtrinsicsInput[N](ctx, backend, block, overlay)
	if err != nil {
		return BuildResult[N]{}, fmt.Errorf("changestrie: extrinsic pass: %w", err)
	}

	digestTop, digestChildren, covered, err := prepareDigestInput[N](ctx, logger, metrics, parent, cfg, storage, block)
	if err != nil {
		return BuildResult[N]{}, fmt.Errorf("changestrie: digest pass: %w", err)
	}

	top := chainInputPairs(extrinsicTop, digestTop)

	childKeys := map[string]struct{}{}
	for sk := range extrinsicChildren {
		childKeys[sk] = struct{}{}
	}
	for sk := range digestChildren {
		childKeys[sk] = struct{}{}
	}
	children := make(map[string]iter.Seq[InputPair[N]], len(childKeys))
	childCount := 0
	for sk := range childKeys {
		// Outer join: a child mentioned only in the extrinsic pass (no
		// ancestor ever summarized it) or only in the digest pass (no
		// writes against it this block) must still surface its entries.
		chained := chainInputPairs(extrinsicChildren[sk], digestChildren[sk])
		childCount += len(chained)
		children[sk] = seqOf(chained)
	}

	if metrics != nil {
		metrics.ObserveBuild(len(covered), time.Since(started))
	}
	logger.Debug("prepared changes-trie input",
		zap.Int("top_pairs", len(top)),
		zap.Int("child_pairs", childCount),
		zap.Int("child_scopes", len(children)),
		zap.Int("digest_blocks_covered", len(covered)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return BuildResult[N]{
		Top:                 seqOf(top),
		Children:            children,
		CoveredDigestBlocks: covered,
	}, nil
}

// chainInputPairs concatenates the extrinsic pass's entries with the digest
// pass's entries for one scope (spec §5: top_iter = chain(top_ext, top_dig),
// and likewise per child). A key covered by both an extrinsic write this
// block and an ancestor digest is not merged into one entry: it surfaces as
// two distinct InputPairs, one ExtrinsicIndex and one DigestIndex, exactly
// as the two passes produced them.
func chainInputPairs[N Num](extrinsics, digests []InputPair[N]) []InputPair[N] {
	out := make([]InputPair[N], 0, len(extrinsics)+len(digests))
	out = append(out, extrinsics...)
	out = append(out, digests...)
	return out
}

func seqOf[N Num](pairs []InputPair[N]) iter.Seq[InputPair[N]] {
	return func(yield func(InputPair[N]) bool) {
		for _, p := range pairs {
			if !yield(p) {
				return
			}
		}
	}
}
