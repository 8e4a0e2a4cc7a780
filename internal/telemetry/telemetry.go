// Package telemetry exposes application metrics collectors for the
// blockchain persistence core, built with promauto so every collector
// self-registers against the default registry when the package is
// initialized.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	organizeCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "organizer",
		Name:      "cycles_total",
		Help:      "Count of Organize runs.",
	}, []string{"status"})
	organizeGraftsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "organizer",
		Name:      "grafts_total",
		Help:      "Count of orphan subtrees grafted onto the main tree.",
	}, []string{"status"})
	organizeCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgercore",
		Subsystem: "organizer",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full Organize run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	validateCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "validator",
		Name:      "cycles_total",
		Help:      "Count of Validate runs.",
	}, []string{"status"})
	validateBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "validator",
		Name:      "blocks_total",
		Help:      "Count of blocks processed by the validator.",
	}, []string{"result"})
	validateCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgercore",
		Subsystem: "validator",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full Validate run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	barrierRaisesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "barrier",
		Name:      "raises_total",
		Help:      "Count of RaiseBarrier calls from ingestion.",
	})
	barrierCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "barrier",
		Name:      "cycles_total",
		Help:      "Count of organize+validate cycles triggered by the barrier.",
	}, []string{"trigger", "status"})

	ingressBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "ingress",
		Name:      "blocks_total",
		Help:      "Count of orphan blocks inserted by ingress.",
	}, []string{"status"})
)

// Organizer tracks metrics for one Organize run.
type Organizer struct{}

// NewOrganizer constructs an Organizer metrics collector.
func NewOrganizer() Organizer { return Organizer{} }

// Observe records duration, status and graft count of a completed run.
func (Organizer) Observe(err error, grafts int, started time.Time) {
	status := statusOf(err)
	organizeCyclesTotal.WithLabelValues(status).Inc()
	organizeCycleDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	organizeGraftsTotal.WithLabelValues(status).Add(float64(grafts))
}

// Validator tracks metrics for one Validate run.
type Validator struct{}

// NewValidator constructs a Validator metrics collector.
func NewValidator() Validator { return Validator{} }

// Observe records duration and status of a completed run.
func (Validator) Observe(err error, started time.Time) {
	status := statusOf(err)
	validateCyclesTotal.WithLabelValues(status).Inc()
	validateCycleDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveBlock records the outcome of one validated block ("valid" or
// "rejected").
func ObserveBlock(result string) {
	validateBlocksTotal.WithLabelValues(result).Inc()
}

// ObserveBarrierRaise records one RaiseBarrier call.
func ObserveBarrierRaise() {
	barrierRaisesTotal.Inc()
}

// ObserveBarrierCycle records one triggered cycle, keyed by what fired it
// ("clearance" or "timeout").
func ObserveBarrierCycle(trigger string, err error) {
	barrierCyclesTotal.WithLabelValues(trigger, statusOf(err)).Inc()
}

// ObserveIngressBlock records one InsertOrphanBlock outcome.
func ObserveIngressBlock(err error) {
	ingressBlocksTotal.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
