// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	WebhooksReceived    *prometheus.CounterVec // by provider
	SignatureFailures   *prometheus.CounterVec // by provider
	DuplicatesSuppressed prometheus.Counter
	TokensRejected      prometheus.Counter
	EventsApplied       *prometheus.CounterVec // by workflow
	EventsFailed        *prometheus.CounterVec // by workflow
	GiftGrants          *prometheus.CounterVec // named | community

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer

	// Gauges
	UnprocessedGiftsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "payment_webhooks_received_total", Help: "Webhook deliveries received"}, []string{"provider"})
		SignatureFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "payment_signature_failures_total", Help: "Webhook deliveries rejected for bad or missing signatures"}, []string{"provider"})
		DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "payment_duplicates_suppressed_total", Help: "Events acknowledged without mutation because they were already applied"})
		TokensRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "payment_reference_tokens_rejected_total", Help: "Events dropped because their reference token could not be interpreted"})
		EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "payment_events_applied_total", Help: "Events that completed a reconciliation workflow"}, []string{"workflow"})
		EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "payment_events_failed_total", Help: "Events that failed a reconciliation workflow and will be retried by the provider"}, []string{"workflow"})
		GiftGrants = promauto.NewCounterVec(prometheus.CounterOpts{Name: "payment_gift_grants_total", Help: "Gifted subscription grants and extensions"}, []string{"pass"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "payment_reconcile_duration_seconds", Help: "Duration of one reconciliation workflow", Buckets: prometheus.DefBuckets})
		UnprocessedGiftsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "payment_unprocessed_gift_orders", Help: "Gift orders awaiting distribution"})
	})
}

// SetUnprocessedGifts records the current count of pending gift orders.
func SetUnprocessedGifts(n int) {
	if UnprocessedGiftsGauge != nil {
		UnprocessedGiftsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
