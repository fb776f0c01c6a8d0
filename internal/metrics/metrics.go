// Package metrics holds the Prometheus metric objects for the StreamXR
// session/streaming core. Serving them over HTTP is an external
// collaborator — this package only registers and updates them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric emitted by the core.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionsRejected prometheus.Counter

	AssetBytesStreamed *prometheus.CounterVec
	AssetChunksSent    *prometheus.CounterVec
	LODDecisions       *prometheus.CounterVec

	BandwidthEstimate *prometheus.HistogramVec

	GenerationJobs    *prometheus.CounterVec
	GenerationLatency prometheus.Histogram

	ObjectGrabs    *prometheus.CounterVec
	ObjectReleases *prometheus.CounterVec

	OutboundQueueDepth *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamxr_sessions_active",
			Help: "Number of currently connected sessions.",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamxr_sessions_total",
			Help: "Total number of sessions accepted.",
		}),
		SessionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamxr_sessions_rejected_total",
			Help: "Total number of connections refused due to saturation.",
		}),
		AssetBytesStreamed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_asset_bytes_streamed_total",
			Help: "Total asset bytes streamed, by LOD.",
		}, []string{"lod"}),
		AssetChunksSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_asset_chunks_sent_total",
			Help: "Total asset chunks sent, by LOD.",
		}, []string{"lod"}),
		LODDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_lod_decisions_total",
			Help: "LOD decisions, by resolved tier and source (bandwidth|foveation|forced).",
		}, []string{"lod", "source"}),
		BandwidthEstimate: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamxr_bandwidth_estimate_bps",
			Help:    "Per-session bandwidth EMA samples, in bytes per second.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
		}, []string{"client_id"}),
		GenerationJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_lod_generation_jobs_total",
			Help: "LOD generation jobs, by tier and outcome (generated|cache_hit|fallback).",
		}, []string{"tier", "outcome"}),
		GenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamxr_lod_generation_latency_seconds",
			Help:    "Wall-clock time spent generating MEDIUM/LOW variants.",
			Buckets: prometheus.DefBuckets,
		}),
		ObjectGrabs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_object_grabs_total",
			Help: "Grab attempts, by outcome (success|contended).",
		}, []string{"outcome"}),
		ObjectReleases: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamxr_object_releases_total",
			Help: "Releases, by reason (explicit|idle_timeout|teardown).",
		}, []string{"reason"}),
		OutboundQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamxr_session_outbound_queue_depth",
			Help: "Current depth of a session's outbound write queue.",
		}, []string{"client_id"}),
	}
}
