package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "metering_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	consumptionQueries *prometheus.CounterVec
	consumptionLatency *prometheus.HistogramVec

	archiveRuns    *prometheus.CounterVec
	archiveLatency *prometheus.HistogramVec

	recoveryReadings prometheus.Counter
	recoveryCorrupt  prometheus.Counter

	maintenanceTransitions *prometheus.CounterVec

	billExportTotal   *prometheus.CounterVec
	billExportLatency *prometheus.HistogramVec

	storedReadings prometheus.GaugeFunc
)

// Init registers the process metrics. The pool may be nil when the
// service runs without a database.
func Init(pool *pgxpool.Pool, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total reading ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest rejections by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumptionQueries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "consumption_queries_total",
				Help: "Total consumption queries by period and result",
			},
			[]string{"period", "result"},
		)
		consumptionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "consumption_latency_seconds",
				Help:    "Consumption query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		archiveRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_runs_total",
				Help: "Total archival runs by scope and result",
			},
			[]string{"scope", "result"},
		)
		archiveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "archive_latency_seconds",
				Help:    "Archival run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		)

		recoveryReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "recovery_readings_total",
				Help: "Readings restored during startup recovery",
			},
		)
		recoveryCorrupt = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "recovery_corrupt_records_total",
				Help: "Corrupt or invalid records skipped during recovery",
			},
		)

		maintenanceTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "maintenance_transitions_total",
				Help: "Maintenance state transitions by target mode",
			},
			[]string{"mode"},
		)

		billExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_export_total",
				Help: "Total bill export operations by format and result",
			},
			[]string{"format", "result"},
		)
		billExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_export_latency_seconds",
				Help:    "Bill export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			consumptionQueries,
			consumptionLatency,
			archiveRuns,
			archiveLatency,
			recoveryReadings,
			recoveryCorrupt,
			maintenanceTransitions,
			billExportTotal,
			billExportLatency,
		)

		if pool != nil {
			registerPoolMetrics(pool, logger)
		}
	})
}

// RegisterStoredReadings exposes the live reading count as a gauge.
func RegisterStoredReadings(count func() int) {
	if storedReadings != nil || count == nil {
		return
	}
	storedReadings = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_readings",
			Help: "Readings currently resident in the in-memory store",
		},
		func() float64 { return float64(count()) },
	)
	prometheus.MustRegister(storedReadings)
}

func registerPoolMetrics(pool *pgxpool.Pool, logger *log.Logger) {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_pool_total_conns",
				Help: "Total connections in the database pool",
			},
			func() float64 { return float64(pool.Stat().TotalConns()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_pool_idle_conns",
				Help: "Idle connections in the database pool",
			},
			func() float64 { return float64(pool.Stat().IdleConns()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_pool_acquired_conns",
				Help: "Acquired connections in the database pool",
			},
			func() float64 { return float64(pool.Stat().AcquiredConns()) },
		),
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if logger != nil {
				logger.Printf("metrics: register pool gauge: %v", err)
			}
		}
	}
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments the ingest rejection counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumption records a consumption query.
func ObserveConsumption(period, result string, duration time.Duration) {
	if period == "" {
		period = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if consumptionQueries != nil {
		consumptionQueries.WithLabelValues(period, result).Inc()
	}
	if consumptionLatency != nil {
		consumptionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveArchive records an archival run.
func ObserveArchive(scope, result string, duration time.Duration) {
	if scope == "" {
		scope = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if archiveRuns != nil {
		archiveRuns.WithLabelValues(scope, result).Inc()
	}
	if archiveLatency != nil {
		archiveLatency.WithLabelValues(scope).Observe(duration.Seconds())
	}
}

// AddRecoveredReadings counts readings restored at startup.
func AddRecoveredReadings(count int) {
	if count > 0 && recoveryReadings != nil {
		recoveryReadings.Add(float64(count))
	}
}

// AddCorruptRecords counts records skipped during recovery.
func AddCorruptRecords(count int) {
	if count > 0 && recoveryCorrupt != nil {
		recoveryCorrupt.Add(float64(count))
	}
}

// IncMaintenanceTransition counts a transition into the given mode.
func IncMaintenanceTransition(mode string) {
	if mode == "" {
		mode = "unknown"
	}
	if maintenanceTransitions != nil {
		maintenanceTransitions.WithLabelValues(mode).Inc()
	}
}

// ObserveBillExport records a bill export.
func ObserveBillExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if billExportTotal != nil {
		billExportTotal.WithLabelValues(format, result).Inc()
	}
	if billExportLatency != nil {
		billExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
