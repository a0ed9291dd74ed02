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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a builder reports against. A nil
// *Metrics is valid everywhere it's accepted and simply disables reporting.
type Metrics struct {
	buildsTotal           prometheus.Counter
	buildDuration         prometheus.Histogram
	digestBlocksCovered   prometheus.Histogram
	cacheHitsTotal        prometheus.Counter
}

// NewMetrics constructs a Metrics and registers its collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		buildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "changestrie",
			Name:      "builds_total",
			Help:      "Number of PrepareInput calls completed.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "changestrie",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock time spent in PrepareInput.",
			Buckets:   prometheus.DefBuckets,
		}),
		digestBlocksCovered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "changestrie",
			Name:      "digest_blocks_covered",
			Help:      "Number of ancestor blocks the digest pass summarized per build.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "changestrie",
			Name:      "cache_hits_total",
			Help:      "Number of ancestor blocks resolved via WithCachedChangedKeys instead of a trie walk.",
		}),
	}
	reg.MustRegister(m.buildsTotal, m.buildDuration, m.digestBlocksCovered, m.cacheHitsTotal)
	return m
}

// ObserveBuild records one completed PrepareInput call.
func (m *Metrics) ObserveBuild(coveredBlocks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.buildsTotal.Inc()
	m.buildDuration.Observe(elapsed.Seconds())
	m.digestBlocksCovered.Observe(float64(coveredBlocks))
}

// ObserveCacheHit records one digest-pass ancestor resolved from cache.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}
