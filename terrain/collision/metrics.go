package collision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queueSaturated counts load requests that found the command queue full.
	queueSaturated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leven_collision_queue_saturated_total",
		Help: "Total collision load requests enqueued asynchronously because the queue was full",
	})

	// nodesLoaded counts collision node loads by result.
	nodesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leven_collision_nodes_loaded_total",
		Help: "Total collision nodes loaded by result",
	}, []string{"result"})

	// liveNodes holds the number of collision nodes taken from the pool.
	liveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leven_collision_live_nodes",
		Help: "Number of collision nodes currently holding geometry",
	})
)
