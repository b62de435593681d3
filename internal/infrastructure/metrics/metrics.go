package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// Allocation disposition labels
const (
	DispositionFulfilled   = "fulfilled"
	DispositionProcurement = "procurement"
	DispositionRejected    = "rejected"
)

var (
	initOnce sync.Once

	transitionsCounter  *prometheus.CounterVec
	errorsCounter       *prometheus.CounterVec
	allocationCounter   *prometheus.CounterVec
	matchDurationMetric prometheus.Histogram
	belowReorderGauge   prometheus.Gauge
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		transitionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_transitions_total",
				Help: "Total number of committed approval actions by action.",
			},
			[]string{"action"},
		)

		errorsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_errors_total",
				Help: "Total number of failed requests by error kind.",
			},
			[]string{"kind"},
		)

		allocationCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocation_quantity_total",
				Help: "Total units decided at approval by disposition.",
			},
			[]string{"disposition"},
		)

		matchDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inventory_match_duration_seconds",
				Help:    "Duration of inventory matching runs in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		belowReorderGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stock_below_reorder_items",
				Help: "Active stock rows whose available quantity is at or below the reorder level.",
			},
		)

		prometheus.MustRegister(
			transitionsCounter,
			errorsCounter,
			allocationCounter,
			matchDurationMetric,
			belowReorderGauge,
		)

		for _, action := range []string{
			"submitted",
			entity.ActionForwarded,
			entity.ActionApproved,
			entity.ActionRejected,
			entity.ActionFinalized,
		} {
			transitionsCounter.WithLabelValues(action)
		}

		for _, d := range []string{DispositionFulfilled, DispositionProcurement, DispositionRejected} {
			allocationCounter.WithLabelValues(d)
		}
	})
}

func IncTransition(action string) {
	Init()
	transitionsCounter.WithLabelValues(action).Inc()
}

func IncError(kind string) {
	Init()
	errorsCounter.WithLabelValues(kind).Inc()
}

func AddAllocation(disposition string, qty int) {
	if qty <= 0 {
		return
	}
	Init()
	allocationCounter.WithLabelValues(disposition).Add(float64(qty))
}

func ObserveMatchDuration(d time.Duration) {
	Init()
	matchDurationMetric.Observe(d.Seconds())
}

func SetBelowReorder(n int) {
	Init()
	belowReorderGauge.Set(float64(n))
}
