// Package metrics defines the Prometheus instruments exposed on /metrics.
//
// All instruments register on the default registry at init; packages
// increment them directly rather than threading collector handles around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArtifactsExtracted counts artifacts parsed out of completed assistant
	// messages, labeled by mapped artifact type.
	ArtifactsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "artifact",
		Name:      "extracted_total",
		Help:      "Artifacts extracted from assistant messages, by type.",
	}, []string{"type"})

	// ImportWarnings counts advisory import findings attached to artifacts.
	ImportWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "artifact",
		Name:      "import_warnings_total",
		Help:      "Advisory import warnings attached to extracted artifacts.",
	})

	// CanvasEvictions counts artifacts evicted after the canvas hit its
	// open limit.
	CanvasEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "canvas",
		Name:      "evictions_total",
		Help:      "Artifacts evicted from the canvas at the open-artifact limit.",
	})

	// SnapshotFailures counts degraded canvas persistence operations. The
	// canvas keeps serving from memory when these fire.
	SnapshotFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "canvas",
		Name:      "snapshot_failures_total",
		Help:      "Canvas snapshot load/save/clear failures, by operation.",
	}, []string{"op"})

	// StreamChunks counts text deltas delivered over chat SSE streams.
	StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "stream",
		Name:      "chunks_total",
		Help:      "Text chunks delivered over chat SSE streams.",
	})

	// StreamErrors counts chat streams that ended with an error, labeled by
	// classified kind (canceled, timeout, internal).
	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "easel",
		Subsystem: "stream",
		Name:      "errors_total",
		Help:      "Chat streams ended by an error, by classified kind.",
	}, []string{"kind"})

	// ActiveStreams tracks chat SSE streams currently open.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "easel",
		Subsystem: "stream",
		Name:      "active_streams",
		Help:      "Chat SSE streams currently open.",
	})
)
