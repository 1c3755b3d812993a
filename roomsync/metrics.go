// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roomsync

import (
	"github.com/luxfi/metric"
)

type syncMetrics struct {
	numApplied  metric.Counter
	numRejected metric.Counter
	numPoisoned metric.Counter
}

func newMetrics(registerer metric.Registerer) (*syncMetrics, error) {
	m := &syncMetrics{
		numApplied: metric.NewCounter(metric.CounterOpts{
			Name: "roomsync_deltas_applied",
			Help: "Number of deltas verified and merged",
		}),
		numRejected: metric.NewCounter(metric.CounterOpts{
			Name: "roomsync_deltas_rejected",
			Help: "Number of deltas rejected by verification",
		}),
		numPoisoned: metric.NewCounter(metric.CounterOpts{
			Name: "roomsync_rooms_poisoned",
			Help: "Number of rooms halted by a broken merge invariant",
		}),
	}

	if err := registerer.Register(metric.AsCollector(m.numApplied)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numRejected)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numPoisoned)); err != nil {
		return nil, err
	}
	return m, nil
}
