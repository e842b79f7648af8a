// Package metrics holds the prometheus collectors for the ledger engine.
//
// Every collector lives on a private registry so tests can build as many
// Metrics values as they like. All Record methods are safe on a nil
// receiver; a Service built without metrics just skips them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sheetledger"

// Metrics holds all engine metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Unit of work metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	FlushFailures     prometheus.Counter

	// Business metrics
	SalesTotal      *prometheus.CounterVec
	SaleValue       prometheus.Counter
	UnitsAllocated  *prometheus.CounterVec
	BatchesReceived prometheus.Counter
	BatchesPruned   prometheus.Counter
	LedgerEntries   *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Units of work by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Unit of work duration in seconds, commit included",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.FlushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Durability flushes that failed after a committed operation",
		},
	)

	m.SalesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Committed sales by payment status",
		},
		[]string{"payment_status"},
	)

	m.SaleValue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_value_base_total",
			Help:      "Sum of committed sale totals in base currency",
		},
	)

	m.UnitsAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_allocated_total",
			Help:      "Sheet units drawn from batches by FIFO allocation",
		},
		[]string{"sheet_type"},
	)

	m.BatchesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_received_total",
			Help:      "Purchase batches received",
		},
	)

	m.BatchesPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_pruned_total",
			Help:      "Exhausted batches removed by pruning",
		},
	)

	m.LedgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended by account kind and entry type",
		},
		[]string{"account_kind", "entry_type"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.FlushFailures,
		m.SalesTotal,
		m.SaleValue,
		m.UnitsAllocated,
		m.BatchesReceived,
		m.BatchesPruned,
		m.LedgerEntries,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// =============================================================================
// RECORDERS
// =============================================================================

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordOperation counts one unit of work. outcome is "ok" or an error
// category such as "validation" or "insufficient_stock".
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordFlushFailure() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}

func (m *Metrics) RecordSale(paymentStatus string, totalBase float64) {
	if m == nil {
		return
	}
	m.SalesTotal.WithLabelValues(paymentStatus).Inc()
	m.SaleValue.Add(totalBase)
}

func (m *Metrics) RecordAllocation(sheetCode string, units float64) {
	if m == nil {
		return
	}
	m.UnitsAllocated.WithLabelValues(sheetCode).Add(units)
}

func (m *Metrics) RecordBatchReceived() {
	if m == nil {
		return
	}
	m.BatchesReceived.Inc()
}

func (m *Metrics) RecordPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BatchesPruned.Add(float64(n))
}

func (m *Metrics) RecordLedgerEntry(accountKind, entryType string) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(accountKind, entryType).Inc()
}
