package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type reducerMetrics struct {
	events   *prometheus.CounterVec
	deferred *prometheus.GaugeVec
}

var (
	reducerMetricsOnce sync.Once
	reducerRegistry    *reducerMetrics

	syncMetricsOnce sync.Once
	syncRegistry    *syncMetrics

	connectMetricsOnce sync.Once
	connectRegistry    *connectMetrics
)

// Reducer returns the lazily-initialised metrics registry used to record
// Event Reducer outcomes (§4.4: Applied/Dropped/Deferred per kind).
func Reducer() *reducerMetrics {
	reducerMetricsOnce.Do(func() {
		reducerRegistry = &reducerMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "coinstr",
				Subsystem: "reducer",
				Name:      "events_total",
				Help:      "Total events processed by the reducer segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			deferred: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "coinstr",
				Subsystem: "reducer",
				Name:      "deferred_queue_depth",
				Help:      "Count of events currently deferred waiting on a missing dependency, by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(reducerRegistry.events, reducerRegistry.deferred)
	})
	return reducerRegistry
}

// Observe records one reducer dispatch outcome for kind (Applied, Dropped,
// or Deferred).
func (m *reducerMetrics) Observe(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(labelKind(kind), strings.ToLower(outcome)).Inc()
}

// SetDeferredDepth updates the current size of the deferred-event backlog
// for kind, polled by the pending-event loop.
func (m *reducerMetrics) SetDeferredDepth(kind string, depth int) {
	if m == nil {
		return
	}
	m.deferred.WithLabelValues(labelKind(kind)).Set(float64(depth))
}

// syncMetrics tracks the chain-sync and subscription background loops.
type syncMetrics struct {
	syncLatency  *prometheus.HistogramVec
	syncErrors   *prometheus.CounterVec
	relayUp      *prometheus.GaugeVec
	pendingDepth prometheus.Gauge
}

// Sync returns the metrics registry for the background loops (§4.6).
func Sync() *syncMetrics {
	syncMetricsOnce.Do(func() {
		syncRegistry = &syncMetrics{
			syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "coinstr",
				Subsystem: "sync",
				Name:      "policy_sync_duration_seconds",
				Help:      "Latency distribution for a single policy wallet sync pass.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "coinstr",
				Subsystem: "sync",
				Name:      "errors_total",
				Help:      "Count of background loop failures segmented by loop and reason.",
			}, []string{"loop", "reason"}),
			relayUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "coinstr",
				Subsystem: "sync",
				Name:      "relay_connected",
				Help:      "Whether the subscription loop currently has a live connection to a relay (1) or not (0).",
			}, []string{"relay"}),
			pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "coinstr",
				Subsystem: "sync",
				Name:      "pending_events",
				Help:      "Count of locally-queued events still awaiting relay acknowledgement.",
			}),
		}
		prometheus.MustRegister(
			syncRegistry.syncLatency,
			syncRegistry.syncErrors,
			syncRegistry.relayUp,
			syncRegistry.pendingDepth,
		)
	})
	return syncRegistry
}

// ObserveSync records how long a policy sync pass took and whether it
// succeeded.
func (m *syncMetrics) ObserveSync(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.syncLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordError increments the loop error counter for the supplied loop and
// reason (e.g. "chain_sync"/"electrum_unset").
func (m *syncMetrics) RecordError(loop, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.syncErrors.WithLabelValues(loop, reason).Inc()
}

// SetRelayConnected toggles the relay_connected gauge for one relay URL.
func (m *syncMetrics) SetRelayConnected(relay string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.relayUp.WithLabelValues(relay).Set(value)
}

// SetPendingDepth records the current size of the pending-event queue.
func (m *syncMetrics) SetPendingDepth(depth int) {
	if m == nil {
		return
	}
	m.pendingDepth.Set(float64(depth))
}

// connectMetrics tracks the Remote Signing Channel (§4.7).
type connectMetrics struct {
	requests    *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// Connect returns the metrics registry for NostrConnect session activity.
func Connect() *connectMetrics {
	connectMetricsOnce.Do(func() {
		connectRegistry = &connectMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "coinstr",
				Subsystem: "connect",
				Name:      "requests_total",
				Help:      "Count of NostrConnect requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "coinstr",
				Subsystem: "connect",
				Name:      "rate_limited_total",
				Help:      "Count of NostrConnect requests rejected for exceeding the per-app rate limit.",
			}),
		}
		prometheus.MustRegister(connectRegistry.requests, connectRegistry.rateLimited)
	})
	return connectRegistry
}

// Observe records one NostrConnect request outcome.
func (m *connectMetrics) Observe(method string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

// RecordRateLimited increments the rate-limited counter.
func (m *connectMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func labelKind(kind string) string {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
