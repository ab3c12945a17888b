package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes scheduler counters on the default prometheus registry
type Metrics struct {
	PollsTotal        prometheus.Counter
	PollsSkipped      prometheus.Counter
	JobsProcessed     prometheus.Counter
	DispatchesTotal   *prometheus.CounterVec
	DispatchDuration  prometheus.Histogram
	LimiterDeferrals  prometheus.Counter
	EnqueueFailures   prometheus.Counter
	PendingRecipients prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		PollsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_scheduler_polls_total",
			Help: "Number of completed scheduler poll cycles",
		}),
		PollsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_scheduler_polls_skipped_total",
			Help: "Number of poll ticks skipped because the previous cycle was still running",
		}),
		JobsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_scheduler_jobs_processed_total",
			Help: "Number of due broadcast jobs picked up",
		}),
		DispatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_dispatches_total",
			Help: "Recipient dispatch attempts by result",
		}, []string{"result"}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_dispatch_duration_seconds",
			Help:    "Duration of single recipient dispatch attempts",
			Buckets: prometheus.DefBuckets,
		}),
		LimiterDeferrals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_limiter_deferrals_total",
			Help: "Recipient attempts deferred by the per-device concurrency limit",
		}),
		EnqueueFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_enqueue_failures_total",
			Help: "Recipient deliveries that could not be handed to the queue",
		}),
		PendingRecipients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_pending_recipients",
			Help: "Pending recipients seen in the most recent poll cycle",
		}),
	}
}
