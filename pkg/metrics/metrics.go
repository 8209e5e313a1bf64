package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "rootsyncer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Window = "window"
	Oracle = "oracle"
	Cycle  = "cycle"
	Events = "events"
)

// Cycle result label values.
const (
	CycleResultAdvanced  = "advanced"
	CycleResultNoop      = "noop"
	CycleResultBootstrap = "bootstrap"
	CycleResultResumed   = "resumed"
	CycleResultFailed    = "failed"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple syncer instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 43114 for C-Chain mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Window state
	cursor      prometheus.Gauge
	windowLower prometheus.Gauge
	windowUpper prometheus.Gauge
	finalized   prometheus.Gauge
	lag         prometheus.Gauge

	// Cycle counters
	cycles        *prometheus.CounterVec
	cycleFailures *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	rootsAdded    prometheus.Counter
	rootsEvicted  prometheus.Counter
	retries       *prometheus.CounterVec
	errors        *prometheus.CounterVec

	// Ledger RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Oracle write metrics
	oracleWrites        *prometheus.CounterVec
	oracleWriteDuration *prometheus.HistogramVec

	// Window event metrics
	eventsProduced *prometheus.CounterVec
	kafkaErrors    *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	// 1ms .. 30s, wide enough for a receipt wait on the oracle chain
	durationBuckets := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	m := &Metrics{
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cursor",
			Help:      "Highest finalized block mirrored into the oracle",
		}),
		windowLower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "lower",
			Help:      "Lowest block number currently held by the oracle window",
		}),
		windowUpper: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "upper",
			Help:      "Highest block number currently held by the oracle window",
		}),
		finalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "finalized_head",
			Help:      "Latest finalized block reported by the ledger",
		}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "lag_blocks",
			Help:      "Finalized head minus cursor",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Cycle,
			Name:      "total",
			Help:      "Total sync cycles by result",
		}, []string{"result"}),
		cycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Cycle,
			Name:      "failures_total",
			Help:      "Total failed sync cycles by stage",
		}, []string{"stage"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Cycle,
			Name:      "duration_seconds",
			Help:      "Time to run a single sync cycle end-to-end",
			Buckets:   durationBuckets,
		}),
		rootsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "roots_added_total",
			Help:      "Total state roots published to the oracle",
		}),
		rootsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "roots_evicted_total",
			Help:      "Total state roots purged from the oracle",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_total",
			Help:      "Total retried calls by operation",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by kind",
		}, []string{"kind"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		oracleWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Oracle,
			Name:      "writes_total",
			Help:      "Total oracle writes by operation and status",
		}, []string{"op", "status"}),
		oracleWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Oracle,
			Name:      "write_duration_seconds",
			Help:      "Oracle write duration in seconds, including receipt wait",
			Buckets:   durationBuckets,
		}, []string{"op"}),
		eventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Events,
			Name:      "produced_total",
			Help:      "Total window events produced to Kafka by status",
		}, []string{"status"}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Events,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka errors received by severity (fatal/non_fatal)",
		}, []string{"severity"}),
	}

	err := errors.Join(
		reg.Register(m.cursor),
		reg.Register(m.windowLower),
		reg.Register(m.windowUpper),
		reg.Register(m.finalized),
		reg.Register(m.lag),
		reg.Register(m.cycles),
		reg.Register(m.cycleFailures),
		reg.Register(m.cycleDuration),
		reg.Register(m.rootsAdded),
		reg.Register(m.rootsEvicted),
		reg.Register(m.retries),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.oracleWrites),
		reg.Register(m.oracleWriteDuration),
		reg.Register(m.eventsProduced),
		reg.Register(m.kafkaErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncError increments the error counter for the given error kind.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// IncRetry increments the retry counter for an operation.
func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// RecordCycle records the result and duration of a sync cycle.
func (m *Metrics) RecordCycle(result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(durationSeconds)
}

// RecordCycleFailure records a failed cycle by the stage that failed.
func (m *Metrics) RecordCycleFailure(stage string) {
	if m == nil {
		return
	}
	m.cycleFailures.WithLabelValues(stage).Inc()
}

// CommitWindow records a successful window change.
func (m *Metrics) CommitWindow(added, evicted int, lower, upper uint64) {
	if m == nil {
		return
	}
	if added > 0 {
		m.rootsAdded.Add(float64(added))
	}
	if evicted > 0 {
		m.rootsEvicted.Add(float64(evicted))
	}
	m.UpdateWindowMetrics(lower, upper)
}

// UpdateWindowMetrics updates window state gauges. The cursor equals the window's upper bound.
func (m *Metrics) UpdateWindowMetrics(lower, upper uint64) {
	if m == nil {
		return
	}
	m.windowLower.Set(float64(lower))
	m.windowUpper.Set(float64(upper))
	m.cursor.Set(float64(upper))
}

// UpdateLag records the ledger's finalized head and the distance to the cursor.
func (m *Metrics) UpdateLag(finalized, cursor uint64) {
	if m == nil {
		return
	}
	m.finalized.Set(float64(finalized))
	var lag uint64
	if finalized > cursor {
		lag = finalized - cursor
	}
	m.lag.Set(float64(lag))
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordOracleWrite records an oracle publish or purge outcome.
func (m *Metrics) RecordOracleWrite(op string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.oracleWrites.WithLabelValues(op, status(err)).Inc()
	m.oracleWriteDuration.WithLabelValues(op).Observe(durationSeconds)
}

// RecordEventProduced records a window event publish attempt.
func (m *Metrics) RecordEventProduced(err error) {
	if m == nil {
		return
	}
	m.eventsProduced.WithLabelValues(status(err)).Inc()
}

// RecordKafkaError records a Kafka error by severity.
// fatal=true for fatal errors, false for non-fatal.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
