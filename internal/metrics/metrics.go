// Package metrics exposes prometheus collectors for sync activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for cycle results
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	syncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_sync_cycles_total",
		Help: "Sync cycles by result",
	}, []string{"result"})

	mergeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_records_merged_total",
		Help: "Inbound records by merge outcome (kept_local, took_remote, merged, inserted)",
	}, []string{"outcome"})

	rejectedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_records_rejected_total",
		Help: "Inbound records rejected by structural validation",
	})

	peerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_peer_failures_total",
		Help: "Exchanges aborted because the peer was unreachable",
	}, []string{"transport"})

	importedConversations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_imported_conversations_total",
		Help: "Conversations seeded from the local source",
	})

	storedConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_stored_conversations",
		Help: "Conversations currently held by this replica, tombstones included",
	})

	exchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_exchange_duration_seconds",
		Help:    "Duration of a full exchange with one peer",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})
)

// ObserveCycle counts a finished sync cycle
func ObserveCycle(result string) {
	syncCycles.WithLabelValues(result).Inc()
}

// ObserveMerge counts one inbound record by outcome
func ObserveMerge(outcome string) {
	mergeOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRejected counts one rejected inbound record
func ObserveRejected() {
	rejectedRecords.Inc()
}

// ObservePeerFailure counts one failed exchange
func ObservePeerFailure(transport string) {
	peerFailures.WithLabelValues(transport).Inc()
}

// ObserveImported counts newly seeded conversations
func ObserveImported(n int) {
	importedConversations.Add(float64(n))
}

// SetStored updates the stored conversations gauge
func SetStored(n int) {
	storedConversations.Set(float64(n))
}

// ObserveExchange records exchange latency
func ObserveExchange(transport string, started time.Time) {
	exchangeDuration.WithLabelValues(transport).Observe(time.Since(started).Seconds())
}

// Handler returns the /metrics handler for the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer creates a dedicated listener for /metrics
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
