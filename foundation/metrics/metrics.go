// Package metrics defines the node's operational counters as Prometheus
// collectors, served from the debug endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors updated by the core as the chain advances.
var (
	BlocksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_blocks_accepted_total",
		Help: "Headers accepted into the chain index.",
	})

	BlocksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_blocks_rejected_total",
		Help: "Headers rejected for violating consensus rules.",
	})

	Reorgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_reorgs_total",
		Help: "Reorganizations of the canonical chain.",
	})

	BestHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_best_height",
		Help: "Height of the canonical tip.",
	})

	OrphanPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_orphan_pool_size",
		Help: "Headers waiting for an unknown parent.",
	})

	KnownPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_known_peers",
		Help: "Peers currently in the known peer set.",
	})

	BlocksMined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_blocks_mined_total",
		Help: "Blocks produced by the local miner.",
	})

	StaleCandidates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_stale_candidates_total",
		Help: "Locally produced candidates discarded because the tip moved.",
	})
)

// Collectors updated by the web middleware.
var (
	WebRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_web_requests_total",
		Help: "HTTP requests handled.",
	})

	WebErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_web_errors_total",
		Help: "HTTP requests that resulted in an error.",
	})

	WebPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_web_panics_total",
		Help: "HTTP requests that resulted in a recovered panic.",
	})
)
