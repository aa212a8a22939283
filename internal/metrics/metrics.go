// Package metrics holds the Prometheus collectors for the upload pipeline and
// the debug mux that exports them.
package metrics

import (
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload path labels
const (
	PathChunked = "chunked"
	PathDirect  = "direct"
)

var (
	registry = prometheus.NewRegistry()
	ready    atomic.Bool

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "active_sessions",
		Help:      "Number of open resumable upload sessions.",
	})

	ChunksAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "chunks_accepted_total",
		Help:      "Chunks appended to a storage channel.",
	})

	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "bytes_received_total",
		Help:      "Payload bytes accepted across all upload paths.",
	})

	Rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "rejections_total",
		Help:      "Rejected upload requests by reason.",
	}, []string{"reason"})

	Completed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "completed_total",
		Help:      "Finalized uploads by path.",
	}, []string{"path"})

	SessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "sessions_ended_total",
		Help:      "Sessions removed from the table without completing, by cause.",
	}, []string{"cause"})

	ChunkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docvault",
		Subsystem: "upload",
		Name:      "chunk_append_seconds",
		Help:      "Time spent appending a chunk to the storage channel.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func init() {
	registry.MustRegister(
		ActiveSessions,
		ChunksAccepted,
		BytesReceived,
		Rejections,
		Completed,
		SessionsEnded,
		ChunkDuration,
	)
}

// Registry returns the registry the upload collectors are registered with.
func Registry() prometheus.Registerer {
	return registry
}

func SetReady()    { ready.Store(true) }
func SetNotReady() { ready.Store(false) }

// Mux serves /metrics, /ready and the pprof endpoints.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		registry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
	mux.Handle("/debug/heap/", pprof.Handler("heap"))
	return mux
}
