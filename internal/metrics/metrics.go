package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricesync"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	feedConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "1 for the current feed connection state, 0 otherwise.",
		},
		[]string{"state"},
	)

	feedConnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connect_attempts_total",
			Help:      "Total number of feed connection attempts.",
		},
	)

	feedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total number of feed frames received.",
		},
	)

	feedParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "parse_errors_total",
			Help:      "Total number of feed frames dropped as malformed.",
		},
	)

	feedInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "invalidations_total",
			Help:      "Total number of assets reported invalid by the feed.",
		},
	)

	cacheWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "write_failures_total",
			Help:      "Total number of failed durable cache writes.",
		},
		[]string{"op"},
	)

	engineTrackedAssets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tracked_assets",
			Help:      "Number of assets currently subscribed on the feed.",
		},
	)

	engineUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "price_updates_total",
			Help:      "Total number of price updates appended to rolling history.",
		},
	)
)

var connectionStates = []string{"connecting", "connected", "disconnected"}

func init() {
	Registry.MustRegister(
		feedConnectionState,
		feedConnectAttempts,
		feedMessages,
		feedParseErrors,
		feedInvalidations,
		cacheWriteFailures,
		engineTrackedAssets,
		engineUpdates,
	)
}

// Handler returns an HTTP handler exposing the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetConnectionState marks state as the current feed connection state.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		feedConnectionState.WithLabelValues(s).Set(v)
	}
}

// ConnectAttempt records a feed connection attempt.
func ConnectAttempt() { feedConnectAttempts.Inc() }

// MessageReceived records a received feed frame.
func MessageReceived() { feedMessages.Inc() }

// ParseError records a dropped feed frame.
func ParseError() { feedParseErrors.Inc() }

// Invalidated records n newly invalid assets.
func Invalidated(n int) { feedInvalidations.Add(float64(n)) }

// CacheWriteFailed records a failed cache write for op.
func CacheWriteFailed(op string) { cacheWriteFailures.WithLabelValues(op).Inc() }

// SetTrackedAssets records the size of the tracked set.
func SetTrackedAssets(n int) { engineTrackedAssets.Set(float64(n)) }

// PriceUpdated records n history appends.
func PriceUpdated(n int) { engineUpdates.Add(float64(n)) }
