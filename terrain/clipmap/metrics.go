package clipmap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("leven.clipmap")

var (
	// updatePasses counts update passes by outcome.
	updatePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leven_clipmap_update_passes_total",
		Help: "Total clipmap update passes by outcome",
	}, []string{"outcome"})

	// updateDuration tracks the duration of update passes that did work.
	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leven_clipmap_update_duration_seconds",
		Help:    "Clipmap update pass duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// nodesConstructed counts node constructions by result.
	nodesConstructed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leven_clipmap_nodes_constructed_total",
		Help: "Total clipmap nodes constructed by result",
	}, []string{"result"})

	// backendErrors counts failed backend calls by operation.
	backendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leven_clipmap_backend_errors_total",
		Help: "Total failed mesh backend calls by operation",
	}, []string{"operation"})

	// seamTriangles tracks the number of triangles in generated seams.
	seamTriangles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leven_clipmap_seam_triangles",
		Help:    "Number of triangles per generated seam mesh",
		Buckets: prometheus.ExponentialBuckets(8, 4, 8),
	})

	// meshOverflows counts meshes truncated because they exceeded the buffer capacity.
	meshOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leven_clipmap_mesh_overflows_total",
		Help: "Total meshes truncated for exceeding buffer capacity by kind",
	}, []string{"kind"})

	// editsDrained counts CSG edits taken from the queue.
	editsDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leven_clipmap_csg_ops_total",
		Help: "Total CSG edits drained from the queue",
	})

	// activeNodes holds the number of active nodes in the last published view tree.
	activeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leven_clipmap_active_nodes",
		Help: "Number of active clipmap nodes in the last published view tree",
	})
)
