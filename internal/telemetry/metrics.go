// Package telemetry provides Prometheus metrics, tracing and correlation-id
// aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsCreated counts timed items persisted, by kind.
	ItemsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_timed_items_created_total",
		Help: "Number of polls and giveaways created",
	}, []string{"kind"})

	// ItemsFinalized counts finalizations by kind and outcome (ok, missing, error).
	ItemsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_timed_items_finalized_total",
		Help: "Number of polls and giveaways finalized",
	}, []string{"kind", "outcome"})

	// StaleItemsRemoved counts rows dropped because their message disappeared.
	StaleItemsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_timed_items_stale_removed_total",
		Help: "Number of timed items removed because the display message was gone",
	}, []string{"kind"})

	CountdownTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_countdown_ticks_total",
		Help: "Number of countdown refresh passes",
	})

	CountdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_countdown_duration_seconds",
		Help:    "Duration of one countdown refresh pass",
		Buckets: prometheus.DefBuckets,
	})

	// ScheduledActions is the number of armed one-shot timers.
	ScheduledActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_scheduled_actions",
		Help: "Number of pending scheduled actions",
	})

	// Commands counts handled commands by name and result.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Number of commands handled",
	}, []string{"command", "result"})

	// Events counts dispatched gateway events by kind.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_events_total",
		Help: "Number of gateway events dispatched",
	}, []string{"kind"})
)

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or an empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns log with a corr attribute if ctx carries one.
func LoggerWithCorr(ctx context.Context, log *slog.Logger) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return log.With(slog.String("corr", id))
	}
	return log
}
