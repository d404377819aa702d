package metrics

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerRequestsTotal *prometheus.CounterVec
	providerRetriesTotal  *prometheus.CounterVec
	providerLatency       *prometheus.HistogramVec

	turnsTotal   *prometheus.CounterVec
	turnDuration prometheus.Histogram

	memoryUpsertsTotal *prometheus.CounterVec
	memoryQueriesTotal *prometheus.CounterVec

	tasksTotal   *prometheus.CounterVec
	reportsTotal *prometheus.CounterVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := strings.TrimSpace(pair[:idx]), pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers. Until it is called
// every recording helper in this package is a no-op.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_management_requests_total",
		Help: "Total number of management HTTP requests",
	}, []string{"method", "status"})

	httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coaching_service_management_request_duration_seconds",
		Help:    "Management HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	providerRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_provider_requests_total",
		Help: "Completion and embedding calls by provider and outcome",
	}, []string{"provider", "outcome"})

	providerRetriesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_provider_retries_total",
		Help: "Retried provider attempts",
	}, []string{"provider"})

	providerLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coaching_service_provider_latency_seconds",
		Help:    "Latency of a single provider attempt",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"provider"})

	turnsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_turns_total",
		Help: "Coaching turns by outcome",
	}, []string{"outcome"})

	turnDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "coaching_service_turn_duration_seconds",
		Help:    "End-to-end coaching turn duration",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	memoryUpsertsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_memory_upserts_total",
		Help: "Memory upserts by outcome",
	}, []string{"outcome"})

	memoryQueriesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_memory_queries_total",
		Help: "Memory queries by outcome",
	}, []string{"outcome"})

	tasksTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_tasks_total",
		Help: "Background tasks by type and outcome",
	}, []string{"type", "outcome"})

	reportsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "coaching_service_reports_total",
		Help: "Generated progress reports by narrative status",
	}, []string{"narrative"})

	StoreLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coaching_service_store_latency_seconds",
		Help:    "Store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "coaching_service_embedding_cache_hits_total",
		Help: "Total embedding cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "coaching_service_embedding_cache_misses_total",
		Help: "Total embedding cache misses",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "coaching_service_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "coaching_service_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// ObserveProvider records one provider attempt.
func ObserveProvider(provider, outcome string, elapsed time.Duration) {
	if providerRequestsTotal == nil {
		return
	}
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// IncProviderRetry counts a retried provider attempt.
func IncProviderRetry(provider string) {
	if providerRetriesTotal != nil {
		providerRetriesTotal.WithLabelValues(provider).Inc()
	}
}

// ObserveTurn records a finished coaching turn.
func ObserveTurn(outcome string, elapsed time.Duration) {
	if turnsTotal == nil {
		return
	}
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(elapsed.Seconds())
}

// IncMemoryUpsert counts a memory upsert by outcome.
func IncMemoryUpsert(outcome string) {
	if memoryUpsertsTotal != nil {
		memoryUpsertsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncMemoryQuery counts a memory query by outcome.
func IncMemoryQuery(outcome string) {
	if memoryQueriesTotal != nil {
		memoryQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

// IncTask counts a background task execution by outcome.
func IncTask(taskType, outcome string) {
	if tasksTotal != nil {
		tasksTotal.WithLabelValues(taskType, outcome).Inc()
	}
}

// IncReport counts a generated report by narrative status.
func IncReport(narrative string) {
	if reportsTotal != nil {
		reportsTotal.WithLabelValues(narrative).Inc()
	}
}

// ObserveStore records a store operation latency.
func ObserveStore(op string, start time.Time) {
	if StoreLatency != nil {
		StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// IncCache counts an embedding cache lookup.
func IncCache(hit bool) {
	if CacheHitsTotal == nil {
		return
	}
	if hit {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
