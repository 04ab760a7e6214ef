package index

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var IndexWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvindex",
	Subsystem: "index",
	Name:      "writes_total",
	Help:      "Index records written",
}, []string{"index"})

var IndexRemovals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvindex",
	Subsystem: "index",
	Name:      "removals_total",
	Help:      "Index record removals by result (removed, missing)",
}, []string{"index", "result"})

var IndexErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvindex",
	Subsystem: "index",
	Name:      "errors_total",
	Help:      "Failed index maintenance operations by op (put, delete, encode)",
}, []string{"index", "op"})

var QueryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvindex",
	Subsystem: "query",
	Name:      "total",
	Help:      "Index queries by result (ok, error)",
}, []string{"index", "result"})

var QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "kvindex",
	Subsystem: "query",
	Name:      "duration_seconds",
	Help:      "Index query latency",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 300},
}, []string{"index"})

var RepairChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvindex",
	Subsystem: "repair",
	Name:      "changes_total",
	Help:      "Index records changed by repair (created, removed)",
}, []string{"index", "action"})

// Collectors returns every collector of this package
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		IndexWrites,
		IndexRemovals,
		IndexErrors,
		QueryCount,
		QueryDuration,
		RepairChanges,
	}
}

// RegisterMetrics registers the package collectors with reg. Collectors
// that are already registered are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
